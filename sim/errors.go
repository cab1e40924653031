package sim

import "fmt"

// Kind classifies the expected failure modes of engine operations.
// Callers branch on kind via errors.Is against the exported sentinels;
// anything else bubbling out of the engine is a store or data fault.
type Kind int

const (
	KindNoActiveSimulation Kind = iota + 1
	KindInvalidState
	KindInsufficientMargin
	KindPriceUnavailable
	KindEndOfData
	KindNotFound
	KindConflictingTrigger
)

func (k Kind) String() string {
	switch k {
	case KindNoActiveSimulation:
		return "no active simulation"
	case KindInvalidState:
		return "invalid state"
	case KindInsufficientMargin:
		return "insufficient margin"
	case KindPriceUnavailable:
		return "price unavailable"
	case KindEndOfData:
		return "end of data"
	case KindNotFound:
		return "not found"
	case KindConflictingTrigger:
		return "conflicting trigger"
	}
	return "unknown"
}

// Error is the engine's structured failure value.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same kind, so
// errors.Is(err, ErrInsufficientMargin) works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrNoActiveSimulation = &Error{Kind: KindNoActiveSimulation}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrInsufficientMargin = &Error{Kind: KindInsufficientMargin}
	ErrPriceUnavailable   = &Error{Kind: KindPriceUnavailable}
	ErrEndOfData          = &Error{Kind: KindEndOfData}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflictingTrigger = &Error{Kind: KindConflictingTrigger}
)

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
