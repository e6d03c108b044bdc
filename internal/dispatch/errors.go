package dispatch

import (
	"errors"
	"fmt"
)

// Kind classifies a dispatch failure.
type Kind int

const (
	// Transient failures may succeed on a later request.
	Transient Kind = iota + 1
	// Fatal failures will fail again and need operator attention.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is returned by Dispatch for every failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func transient(op string, err error) error { return &Error{Kind: Transient, Op: op, Err: err} }

func fatal(op string, err error) error { return &Error{Kind: Fatal, Op: op, Err: err} }

// KindOf returns the classification of err, or 0 when err is not a dispatch error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// IsTransient reports whether err is a transient dispatch failure.
func IsTransient(err error) bool { return KindOf(err) == Transient }

// IsFatal reports whether err is a fatal dispatch failure.
func IsFatal(err error) bool { return KindOf(err) == Fatal }
