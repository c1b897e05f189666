// Package delegate implements the (object, event, state) -> handler
// resolution algorithm used by the dispatcher and the state machine helper.
// It is a pure function of its inputs and the handlers an object happens to
// expose; it owns no dispatch or concurrency behavior of its own.
package delegate

import (
	"fmt"
	"reflect"

	"github.com/haldorn/relay/event"
)

// HandlerFunc is the canonical signature every resolvable handler method
// must have. Receiving the Event lets a handler distinguish onDefault calls
// from multiple possible original events.
type HandlerFunc func(evt event.Identifiable, args ...interface{}) (interface{}, error)

// Templates holds the configurable name templates used to turn (state,
// event) or (event) pairs into method names. Setting a field to "" disables
// that lookup entirely, so a caller that never uses per-state handlers can
// skip the state lookups rather than pay for a reflection call that will
// always miss.
type Templates struct {
	StateHandler        string // e.g. "In%s_On%s" formatted as (state, event)
	DefaultStateHandler string // e.g. "In%s_OnDefault" formatted as (state)
	EventHandler        string // e.g. "On%s" formatted as (event)
	DefaultEventHandler string // e.g. "OnDefault", formatted with no args
}

// DefaultTemplates returns the conventional name templates, capitalized so
// the generated names are exported Go identifiers: reflect only ever
// resolves exported methods, regardless of which package calls
// MethodByName, so an unexported "onStart" could never be found this way.
func DefaultTemplates() Templates {
	return Templates{
		StateHandler:        "In%s_On%s",
		DefaultStateHandler: "In%s_OnDefault",
		EventHandler:        "On%s",
		DefaultEventHandler: "OnDefault",
	}
}

func (t Templates) stateHandlerName(state, eventID string) (string, bool) {
	if t.StateHandler == "" {
		return "", false
	}
	return fmt.Sprintf(t.StateHandler, state, eventID), true
}

func (t Templates) defaultStateHandlerName(state string) (string, bool) {
	if t.DefaultStateHandler == "" {
		return "", false
	}
	return fmt.Sprintf(t.DefaultStateHandler, state), true
}

func (t Templates) eventHandlerName(eventID string) (string, bool) {
	if t.EventHandler == "" {
		return "", false
	}
	return fmt.Sprintf(t.EventHandler, eventID), true
}

func (t Templates) defaultEventHandlerName() (string, bool) {
	if t.DefaultEventHandler == "" {
		return "", false
	}
	return t.DefaultEventHandler, true
}

// EventIdentifier is implemented by objects that want to refine or veto an
// event before resolution runs. Returning ok=false means "ignore this event
// entirely, resolve to no handler".
type EventIdentifier interface {
	IdentifyEvent(evt event.Identifiable) (refined event.Identifiable, ok bool)
}

// StateIdentifier is implemented by objects that carry a current state (in
// practice, anything that embeds *state.State). Returning ok=false means
// the object is stateless for this event and only event-level handlers
// apply.
type StateIdentifier interface {
	IdentifyState(evt event.Identifiable) (state string, ok bool)
}

// Delegator resolves handlers for a fixed Templates configuration and an
// optional explicit Registry consulted before reflection.
type Delegator struct {
	Templates Templates
	Registry  *Registry
}

// New builds a Delegator with the default templates and no explicit
// registry.
func New() *Delegator {
	return &Delegator{Templates: DefaultTemplates()}
}

// HasHandler reports whether GetHandler would resolve a handler.
func (d *Delegator) HasHandler(obj interface{}, evt event.Identifiable) bool {
	h, _, found := d.GetHandler(obj, evt)
	return found && h != nil
}

// GetHandler runs the full resolution algorithm — identify/refine the event,
// identify the current state if any, try the state-specific handler, the
// default-state handler, the event-specific handler, and finally the global
// default handler, in that order — and returns the resolved handler, the
// (possibly refined) event it should be called with, and whether a handler
// was found at all.
func (d *Delegator) GetHandler(obj interface{}, evt event.Identifiable) (HandlerFunc, event.Identifiable, bool) {
	refined, ok := d.identifyEvent(obj, evt)
	if !ok {
		return nil, evt, false
	}

	var handler HandlerFunc
	if state, hasState := d.identifyState(obj, refined); hasState {
		handler = d.findStateHandler(obj, refined.ID(), state)
	}
	if handler == nil {
		handler = d.findEventHandler(obj, refined.ID())
	}
	return handler, refined, handler != nil
}

func (d *Delegator) identifyEvent(obj interface{}, evt event.Identifiable) (event.Identifiable, bool) {
	if identifier, ok := obj.(EventIdentifier); ok {
		return identifier.IdentifyEvent(evt)
	}
	return evt, true
}

func (d *Delegator) identifyState(obj interface{}, evt event.Identifiable) (string, bool) {
	if identifier, ok := obj.(StateIdentifier); ok {
		return identifier.IdentifyState(evt)
	}
	return "", false
}

// findStateHandler looks for the state-specific handler, then the
// default-state handler.
func (d *Delegator) findStateHandler(obj interface{}, eventID, state string) HandlerFunc {
	if name, enabled := d.Templates.stateHandlerName(state, eventID); enabled {
		if h := d.findExactHandler(obj, state, eventID, name); h != nil {
			return h
		}
	}
	if name, enabled := d.Templates.defaultStateHandlerName(state); enabled {
		if h := d.findExactHandler(obj, state, eventID, name); h != nil {
			return h
		}
	}
	return nil
}

// findEventHandler looks for the event-specific handler, then the global
// default handler.
func (d *Delegator) findEventHandler(obj interface{}, eventID string) HandlerFunc {
	if name, enabled := d.Templates.eventHandlerName(eventID); enabled {
		if h := d.findExactHandler(obj, "", eventID, name); h != nil {
			return h
		}
	}
	if name, enabled := d.Templates.defaultEventHandlerName(); enabled {
		if h := d.findExactHandler(obj, "", eventID, name); h != nil {
			return h
		}
	}
	return nil
}

// findExactHandler looks an explicit Registry entry up first (if present),
// then falls back to reflection over obj's exposed methods, which also
// resolves methods promoted from embedded/composed types.
func (d *Delegator) findExactHandler(obj interface{}, state, eventID, name string) HandlerFunc {
	if d.Registry != nil {
		if h, ok := d.Registry.get(state, eventID, name); ok {
			return h
		}
	}
	return methodHandler(obj, name)
}

func methodHandler(obj interface{}, name string) HandlerFunc {
	v := reflect.ValueOf(obj)
	method := v.MethodByName(name)
	if !method.IsValid() {
		return nil
	}
	if h, ok := method.Interface().(func(event.Identifiable, ...interface{}) (interface{}, error)); ok {
		return HandlerFunc(h)
	}
	return nil
}

// WrapEventMethod builds a method wrapper that runs body (the method's own
// implementation, if any), then resolves and invokes a handler named after
// eventID. Construct one of these once per event-producing method,
// typically in the owner's constructor, so an object can both do its own
// work on an event and let other handlers hook into the same event by name.
func WrapEventMethod(d *Delegator, obj interface{}, eventID string, body func(args ...interface{})) func(args ...interface{}) (interface{}, error) {
	return func(args ...interface{}) (interface{}, error) {
		if body != nil {
			body(args...)
		}
		evt := event.New(eventID)
		handler, resolved, found := d.GetHandler(obj, evt)
		if !found {
			return nil, nil
		}
		return handler(resolved, args...)
	}
}
