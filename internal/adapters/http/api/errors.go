package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// Error records the handler operation that failed and the kind of failure.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Op + ": " + e.Kind.Error()
	case e.Kind == nil:
		return e.Op + ": " + e.Err.Error()
	default:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error { return &Error{Op: op, Kind: kind} }

// Wrap attaches op to err.
func Wrap(op string, err error) error { return &Error{Op: op, Err: err} }

// WrapKind classifies err as kind, raised by op.
func WrapKind(op string, kind, err error) error { return &Error{Op: op, Kind: kind, Err: err} }
