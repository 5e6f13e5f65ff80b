package util

import (
	"errors"
	"fmt"
)

// Unsupported reports a construct that is valid C-- but that the compiler
// does not implement. Translation stops at the first one.
type Unsupported struct {
	Line int
	What string
}

func (e *Unsupported) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s is not supported", e.Line, e.What)
	}
	return e.What + " is not supported"
}

// Fault is an internal invariant violation: malformed IR or a tree shape
// the front end should never produce. It always indicates a compiler bug.
type Fault struct {
	Msg string
}

func (e *Fault) Error() string { return "internal fault: " + e.Msg }

// Faultf aborts the current operation with a *Fault. Use Recover at the
// package boundary to turn it back into an error.
func Faultf(format string, args ...interface{}) {
	panic(&Fault{Msg: fmt.Sprintf(format, args...)})
}

// Abort stops the current operation with a user-facing error.
func Abort(err error) { panic(abort{err}) }

type abort struct{ err error }

// Recover converts a panic raised by Faultf or Abort into *errp. Any other
// panic is propagated. It must be called directly by a deferred statement.
func Recover(errp *error) {
	switch r := recover().(type) {
	case nil:
	case *Fault:
		*errp = r
	case abort:
		*errp = r.err
	default:
		panic(r)
	}
}

// Line returns the source line of the *Unsupported in err's chain, or 0.
func Line(err error) int {
	var unsup *Unsupported
	if errors.As(err, &unsup) {
		return unsup.Line
	}
	return 0
}
