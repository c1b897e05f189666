package dispatch

import "fmt"

// Kind enumerates the dispatcher's error taxonomy. A failing handler and an
// unresolved handler are deliberately NOT represented as Kind values
// returned to a caller of Send/Queue/Schedule: a handler panic or error is
// captured into a Future's exception and only re-raised on retrieval, and a
// resolution miss is never surfaced as an error at all (it is logged at
// debug and the call simply returns no result). Cancellation is likewise
// not an error — Future.Get already returns (nil, nil) for a cancelled
// Future.
type Kind string

const (
	// KindInvalidArgument covers a nil dst where one is required, a nil
	// event, or adding a Node without an object or a derivable context.
	KindInvalidArgument Kind = "InvalidArgument"
	// KindMissingContext covers routing or scheduling that requires a
	// destination context but none was set.
	KindMissingContext Kind = "MissingContext"
	// KindUnknownNode covers routing that references an unregistered
	// object.
	KindUnknownNode Kind = "UnknownNode"
)

// Error is a typed error satisfying the standard error interface. Callers
// that need to branch on the failure kind should use errors.As, not string
// matching.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch: %s: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
