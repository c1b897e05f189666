package event

import "fmt"

// Synthetic event identifiers the State FSM dispatches around every
// transition: Leave from the old state, Enter into the new one, Timeout
// when a per-state timer expires, and StateChange as a catch-all a listener
// can subscribe to without caring which specific transition fired it.
const (
	StateEnter       = "Enter"
	StateLeave       = "Leave"
	StateTimeout     = "Timeout"
	StateChangeEvent = "StateChange"
)

// StateEvent is an event identifier carrying the transition's new and old
// state alongside it. It implements Identifiable, so it can be passed
// anywhere an Event can — Dispatcher.Send, Notify, Schedule — without those
// call sites knowing or caring that it carries extra fields.
type StateEvent struct {
	id       string
	NewState string
	OldState string
}

// NewStateEvent constructs a StateEvent. id must be non-empty.
func NewStateEvent(id, newState, oldState string) StateEvent {
	if id == "" {
		panic("event: id must be non-empty")
	}
	return StateEvent{id: id, NewState: newState, OldState: oldState}
}

// ID returns the event's symbolic identifier, satisfying Identifiable.
func (e StateEvent) ID() string {
	return e.id
}

func (e StateEvent) String() string {
	return fmt.Sprintf("id: %s, new_state: %s, old_state: %s", e.id, e.NewState, e.OldState)
}
