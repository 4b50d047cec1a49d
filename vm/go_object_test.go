package vm

import (
	"reflect"
	"testing"
	"unsafe"
)

func TestGoToValueScalars(t *testing.T) {
	h := NewHeap()

	tests := []struct {
		in   interface{}
		want Value
	}{
		{nil, Nil},
		{true, True},
		{false, False},
		{42, FromSmallInt(42)},
		{int8(-3), FromSmallInt(-3)},
		{uint16(7), FromSmallInt(7)},
		{2.5, FromFloat64(2.5)},
		{float32(0.5), FromFloat64(0.5)},
		{FromSmallInt(9), FromSmallInt(9)},
		{(*int)(nil), Nil},
	}

	for _, tt := range tests {
		if got := h.GoToValue(tt.in); got != tt.want {
			t.Errorf("GoToValue(%#v) = %s, want %s", tt.in, h.Inspect(got), h.Inspect(tt.want))
		}
	}
}

func TestGoToValueLargeIntegersBecomeFloats(t *testing.T) {
	h := NewHeap()
	v := h.GoToValue(int64(MaxSmallInt) + 1)
	if v.Kind() != KindFloat {
		t.Errorf("kind = %s, want float", v.Kind())
	}
	v = h.GoToValue(uint64(1) << 63)
	if v.Kind() != KindFloat {
		t.Errorf("kind = %s, want float", v.Kind())
	}
}

func TestGoToValueStringsAndLists(t *testing.T) {
	h := NewHeap()

	s := h.GoToValue("hi")
	if got, _ := h.StringValue(s); got != "hi" {
		t.Errorf("string = %q", got)
	}
	b := h.GoToValue([]byte("raw"))
	if got, _ := h.StringValue(b); got != "raw" {
		t.Errorf("[]byte = %q", got)
	}

	n := 3
	l := h.GoToValue([]interface{}{1, "two", &n, []int{4}})
	got := h.ValueToGo(l)
	want := []interface{}{int64(1), "two", int64(3), []interface{}{int64(4)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ValueToGo(list) = %#v, want %#v", got, want)
	}
}

func TestGoToValueUnsupported(t *testing.T) {
	h := NewHeap()
	if v := h.GoToValue(map[string]int{"a": 1}); v != Nil {
		t.Errorf("map converted to %s, want NULL", h.Inspect(v))
	}
	if v := h.GoToValue(struct{}{}); v != Nil {
		t.Errorf("struct converted to %s, want NULL", h.Inspect(v))
	}
}

func TestValueToGo(t *testing.T) {
	h := NewHeap()

	if h.ValueToGo(Nil) != nil {
		t.Error("Nil should convert to nil")
	}
	if h.ValueToGo(True) != true {
		t.Error("True should convert to true")
	}
	if h.ValueToGo(FromFloat64(1.5)) != 1.5 {
		t.Error("float roundtrip failed")
	}
	if h.ValueToGo(h.Intern("sym")) != "sym" {
		t.Error("symbol should convert to its name")
	}

	n := 1
	p := unsafe.Pointer(&n)
	if h.ValueToGo(h.NewExternalPtr(p, Nil, Nil)) != p {
		t.Error("external pointer should convert to its address")
	}
}
