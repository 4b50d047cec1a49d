package extptr

import (
	"strconv"
	"strings"

	"github.com/chazu/extptr/vm"
)

// Kind categorizes a FromValue failure.
type Kind string

const (
	// KindNotExternalPtr: the value is not an external pointer at all.
	KindNotExternalPtr Kind = "expected_external_ptr"
	// KindTypeMismatch: the value is an external pointer tagged with another type.
	KindTypeMismatch Kind = "expected_external_ptr_type"
)

// Error is returned by FromValue.
type Error struct {
	Kind     Kind
	Value    vm.Value // the rejected value
	Expected string   // type identity FromValue asked for; empty for KindNotExternalPtr
	Actual   string   // kind of the value, or the text of its tag
}

// Sentinels for errors.Is; they match any Error of the same Kind.
var (
	ErrExpectedExternalPtr     = &Error{Kind: KindNotExternalPtr}
	ErrExpectedExternalPtrType = &Error{Kind: KindTypeMismatch}
)

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindNotExternalPtr:
		b.WriteString("expected an external pointer")
		if e.Actual != "" {
			b.WriteString(", got ")
			b.WriteString(e.Actual)
		}
	case KindTypeMismatch:
		b.WriteString("expected an external pointer to ")
		b.WriteString(e.Expected)
		if e.Actual == "" {
			b.WriteString(", got one without a type tag")
		} else {
			b.WriteString(", got one tagged ")
			b.WriteString(strconv.Quote(e.Actual))
		}
	default:
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}
