package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Fault taxonomy
// ---------------------------------------------------------------------------

// Fault is a runtime-level error raised by a primitive operation or by a
// native callable invoked through a metamethod. A Fault is fatal to the
// operation that raised it but not to the State; the State remains usable
// and its stack is restored to the pre-call depth before the Fault is
// returned to the caller.
type Fault struct {
	Op  string // the primitive operation that observed the fault
	Msg string
}

func (f *Fault) Error() string {
	return f.Op + ": " + f.Msg
}

func faultf(op, format string, args ...any) *Fault {
	return &Fault{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// TypeError reports that a value's runtime type does not match what an
// operation requires. It is raised synchronously at the call site, before
// any stack entry is pushed.
type TypeError struct {
	Op   string
	Want Type
	Got  Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Op, e.Want, e.Got)
}

// ConversionError reports that a runtime value cannot be converted to the
// requested native type, or a native value cannot be represented in the
// runtime.
type ConversionError struct {
	Op     string
	From   string // description of the source value/type
	Target string // requested destination type
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: cannot convert %s to %s", e.Op, e.From, e.Target)
}
