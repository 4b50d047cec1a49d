package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxElementPreview is the maximum number of list elements Inspect prints.
const MaxElementPreview = 10

// DefaultMaxDepth is the default recursion depth for Inspect.
const DefaultMaxDepth = 3

// Inspect renders v for debugging. Heap values that have been collected
// print as <collected kind>.
func (h *Heap) Inspect(v Value) string {
	var b strings.Builder
	h.inspect(&b, v, DefaultMaxDepth)
	return b.String()
}

func (h *Heap) inspect(b *strings.Builder, v Value, depth int) {
	switch v.Kind() {
	case KindNil:
		b.WriteString("NULL")

	case KindBool:
		if v.Bool() {
			b.WriteString("TRUE")
		} else {
			b.WriteString("FALSE")
		}

	case KindInt:
		b.WriteString(strconv.FormatInt(v.SmallInt(), 10))

	case KindFloat:
		b.WriteString(strconv.FormatFloat(v.Float64(), 'g', -1, 64))

	case KindSymbol:
		name, ok := h.SymbolName(v)
		if !ok {
			fmt.Fprintf(b, "<symbol %d>", v.SymbolID())
			return
		}
		b.WriteString("`" + name + "`")

	case KindString:
		s, ok := h.StringValue(v)
		if !ok {
			b.WriteString("<collected string>")
			return
		}
		b.WriteString(strconv.Quote(s))

	case KindList:
		if !h.hasList(v) {
			b.WriteString("<collected list>")
			return
		}
		elems := h.ListElements(v)
		if depth <= 0 {
			fmt.Fprintf(b, "list(<%d elements>)", len(elems))
			return
		}
		b.WriteString("list(")
		for i, e := range elems {
			if i == MaxElementPreview {
				fmt.Fprintf(b, ", ...%d more", len(elems)-i)
				break
			}
			if i > 0 {
				b.WriteString(", ")
			}
			h.inspect(b, e, depth-1)
		}
		b.WriteString(")")

	case KindExternalPtr:
		h.mu.Lock()
		e := h.external(v)
		var addr uintptr
		var tag Value
		if e != nil {
			addr = uintptr(e.addr)
			tag = e.tag
		}
		h.mu.Unlock()
		if e == nil {
			b.WriteString("<collected externalptr>")
			return
		}
		fmt.Fprintf(b, "<pointer: %#x tag=", addr)
		h.inspect(b, tag, 0)
		b.WriteString(">")
	}
}

func (h *Heap) hasList(v Value) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.lists[v.HeapID()]
	return ok
}
