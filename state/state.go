// Package state implements a single-state-variable FSM: optional per-state
// timeouts, and synthetic Leave/Enter/Timeout/StateChange events generated
// around every transition. The synthetic events flow through the same
// Dispatcher/Delegator path as any other event rather than calling object
// methods directly, so a handler for "leaving the Running state" looks and
// is registered exactly like a handler for any other event.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/haldorn/relay/event"
	"github.com/haldorn/relay/future"
	"github.com/haldorn/relay/observability"
)

// Dispatcher is the subset of *dispatch.Dispatcher a State needs to emit its
// synthetic events. Declared locally (rather than importing dispatch)
// keeps State decoupled from any one Dispatcher implementation, the same
// way dispatch.ContextHandle keeps the Dispatcher decoupled from econtext.
type Dispatcher interface {
	Send(evt event.Identifiable, src, dst interface{}, args ...interface{}) (future.Awaitable, error)
	Notify(evt event.Identifiable, src interface{}, args ...interface{}) error
	Schedule(delay time.Duration, evt event.Identifiable, src, dst interface{}, args ...interface{}) (*future.ScheduledFuture, error)
}

// State is a state machine bolted onto obj: obj's current state is tracked
// here, and Leave/Enter/Timeout/StateChange events are sent through
// dispatcher using obj as both source and destination, so a handler can
// distinguish which object's state changed when several objects share one
// Dispatcher.
type State struct {
	obj        interface{}
	dispatcher Dispatcher
	hooks      *observability.Hooks

	initialState string
	timeouts     map[string]time.Duration

	mu           sync.Mutex
	currentState string
	timer        *future.ScheduledFuture
}

// New constructs a State for obj, owned by obj, dispatching through
// dispatcher. timeouts maps a state name to the duration after which a
// Timeout event fires if the FSM is still in that state; a state absent
// from the map (or mapped to zero) never times out. New panics if obj or
// initialState is missing, since constructing a State machine without an
// owner or a starting state is a programming error, not a recoverable one.
func New(obj interface{}, dispatcher Dispatcher, initialState string, timeouts map[string]time.Duration, hooks *observability.Hooks) *State {
	if obj == nil {
		panic("state: owner object is required")
	}
	if initialState == "" {
		panic("state: initial state is required")
	}
	if timeouts == nil {
		timeouts = map[string]time.Duration{}
	}
	s := &State{
		obj:          obj,
		dispatcher:   dispatcher,
		hooks:        hooks,
		initialState: initialState,
		timeouts:     timeouts,
	}
	s.ResetState()
	return s
}

// CurrentState returns the FSM's current state.
func (s *State) CurrentState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentState
}

// IdentifyState satisfies delegate.StateIdentifier, letting a Delegator
// resolve state-qualified handler names for obj.
func (s *State) IdentifyState(evt event.Identifiable) (string, bool) {
	return s.CurrentState(), true
}

// ResetState sets the current state back to the initial state and cancels
// any running timer, without dispatching Leave/Enter events.
func (s *State) ResetState() {
	s.hooks.SafeLog("info", "resetting state", map[string]any{"state": s.initialState})
	s.mu.Lock()
	s.currentState = s.initialState
	s.mu.Unlock()
	s.StopStateTimer()
}

// ChangeState transitions to newState. If newState equals the current
// state, this is a no-op: no Leave/Enter events, no timer restart. A real
// transition stops any running timer, dispatches Leave (while currentState
// is still the state being left), flips currentState,
// dispatches Enter, optionally notifies listeners with StateChange, and
// restarts the state timer for the new state.
func (s *State) ChangeState(newState string, notify bool) error {
	oldState := s.CurrentState()
	if oldState == "" {
		return fmt.Errorf("state: %v has no current state", s.obj)
	}
	if oldState == newState {
		return nil
	}

	s.StopStateTimer()

	if _, err := s.dispatcher.Send(event.NewStateEvent(event.StateLeave, newState, oldState), s.obj, s.obj); err != nil {
		return err
	}

	s.mu.Lock()
	s.currentState = newState
	s.mu.Unlock()
	s.hooks.SafeLog("info", "state changed", map[string]any{"from": oldState, "to": newState})

	if _, err := s.dispatcher.Send(event.NewStateEvent(event.StateEnter, newState, oldState), s.obj, s.obj); err != nil {
		return err
	}

	if notify {
		s.hooks.SafeLog("info", "notifying listeners of state change", map[string]any{"state": newState})
		if err := s.dispatcher.Notify(event.NewStateEvent(event.StateChangeEvent, newState, oldState), s.obj); err != nil {
			return err
		}
	}

	s.StartStateTimer()
	return nil
}

// StartStateTimer schedules a Timeout event if the current state has a
// configured, positive timeout. Any previously running timer is stopped
// first.
func (s *State) StartStateTimer() {
	state := s.CurrentState()
	timeout, ok := s.timeouts[state]
	if !ok || timeout <= 0 {
		return
	}

	s.StopStateTimer()
	s.hooks.SafeLog("info", "starting state timer", map[string]any{"state": state, "timeout": timeout})

	sched, err := s.dispatcher.Schedule(timeout, event.NewStateEvent(event.StateTimeout, state, ""), s.obj, s.obj)
	if err != nil {
		s.hooks.SafeLog("warn", "failed to schedule state timer", map[string]any{"state": state, "error": err.Error()})
		return
	}
	s.mu.Lock()
	s.timer = sched
	s.mu.Unlock()
}

// StopStateTimer cancels the running state timer, if any. A no-op if no
// timer is running.
func (s *State) StopStateTimer() {
	s.mu.Lock()
	timer := s.timer
	s.timer = nil
	s.mu.Unlock()

	if timer != nil {
		s.hooks.SafeLog("info", "stopping state timer", nil)
		timer.Cancel()
	}
}

func (s *State) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("state: %s, timer running: %v, timeouts: %v", s.currentState, s.timer != nil, s.timeouts)
}
