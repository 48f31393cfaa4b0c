package stack

import (
	"fmt"
	"runtime"
	"strings"
)

const maxDepth = 32

// Error carries the wrapped error plus the call stack captured at wrap time.
type Error struct {
	err error
	pcs []uintptr
}

// New wraps err with the current call stack. skip counts frames above the
// caller that should not appear in the trace.
func New(err error, skip int) error {
	if err == nil {
		return nil
	}
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip, pcs[:])
	return &Error{err: err, pcs: pcs[:n]}
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// Format prints the stack when %+v is used.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "%s\n%s", e.err.Error(), e.trace())
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.err.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.err.Error())
	}
}

func (e *Error) trace() string {
	var b strings.Builder
	frames := runtime.CallersFrames(e.pcs)
	for {
		f, more := frames.Next()
		if f.Function != "" {
			_, _ = fmt.Fprintf(&b, "  %s\n    %s:%d\n", f.Function, f.File, f.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}
