package delegate

import (
	"fmt"
	"sync"
)

// Registry is the explicit alternative to reflection-based handler lookup:
// a table mapping (state, event) -> handler function, populated at object
// construction and guarded by a RWMutex.
//
// A Delegator consults its Registry (if any) before falling back to
// reflection, so Registry entries take priority and also cover handlers
// that aren't methods on the node object at all — a free function, or one
// supplied by composition rather than promoted through an embedded struct.
type Registry struct {
	mu       sync.RWMutex
	handlers map[registryKey]HandlerFunc
}

type registryKey struct {
	state     string
	event     string
	qualified string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[registryKey]HandlerFunc)}
}

// RegisterState registers an explicit handler for (state, event), bypassing
// name-based lookup entirely.
func (r *Registry) RegisterState(state, eventID string, h HandlerFunc) error {
	if eventID == "" {
		return fmt.Errorf("delegate: event id cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("delegate: handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[registryKey{state: state, event: eventID}] = h
	return nil
}

// RegisterEvent registers an explicit handler for an event regardless of
// state (the state-less equivalent of RegisterState).
func (r *Registry) RegisterEvent(eventID string, h HandlerFunc) error {
	return r.RegisterState("", eventID, h)
}

// get is used internally by findExactHandler; it is keyed the same way a
// formatted handler name would be, so Registry entries and reflected
// methods can never both match and disagree about which one wins (Registry
// always wins, by construction of findExactHandler).
func (r *Registry) get(state, eventID, _ string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[registryKey{state: state, event: eventID}]
	return h, ok
}
