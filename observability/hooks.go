// Package observability provides optional callbacks for logging, metrics,
// and tracing without introducing a required dependency in the core
// packages (event, future, delegate, dispatch, econtext, state). All fields
// are optional; a nil *Hooks, or a Hooks value with a nil field, is always
// safe to invoke through the Safe* helpers below, so a core package can call
// them unconditionally instead of nil-checking Hooks at every call site.
package observability

import "time"

// Hooks bundles the optional callbacks every core component accepts.
type Hooks struct {
	// Logf receives a structured log line: a severity level, a message,
	// and free-form fields. The core never decides how (or whether) this
	// is rendered; that decision belongs to whoever wires Hooks up.
	Logf func(level, msg string, fields map[string]any)

	// OnNodeAdded and OnNodeRemoved fire when the Dispatcher registers or
	// unregisters a Node. label is the object's %v form, formatted by the
	// Dispatcher (Node keys are not otherwise printable).
	OnNodeAdded   func(label string)
	OnNodeRemoved func(label string)

	// OnDispatch fires once per routed delivery (once per Send/Queue call,
	// once per listener for Notify), after routing has decided whether the
	// delivery is synchronous or queued; queued reports that decision.
	OnDispatch func(correlationID, eventID string, queued bool)

	// OnHandlerDone fires after a synchronously-resolved handler returns
	// (or a resolution miss is recorded as a no-op with a nil error).
	OnHandlerDone func(correlationID string, duration time.Duration, err error)

	// OnFutureTerminal fires each time a Context's worker (or Poll)
	// processes a queued Future or ScheduledFuture, naming the state it is in
	// afterwards. A Future that is never dequeued by a Context (including a
	// ScheduledFuture cancelled before its timer fires) is not reported.
	OnFutureTerminal func(state string)

	// OnQueueDepth fires after every enqueue/dequeue on a Context's FIFO,
	// reporting the context's name and its depth immediately after the
	// operation.
	OnQueueDepth func(contextName string, depth int)
}

// SafeLog invokes Logf if configured.
func (h *Hooks) SafeLog(level, msg string, fields map[string]any) {
	if h != nil && h.Logf != nil {
		h.Logf(level, msg, fields)
	}
}

// SafeNodeAdded invokes OnNodeAdded if configured.
func (h *Hooks) SafeNodeAdded(label string) {
	if h != nil && h.OnNodeAdded != nil {
		h.OnNodeAdded(label)
	}
}

// SafeNodeRemoved invokes OnNodeRemoved if configured.
func (h *Hooks) SafeNodeRemoved(label string) {
	if h != nil && h.OnNodeRemoved != nil {
		h.OnNodeRemoved(label)
	}
}

// SafeDispatch invokes OnDispatch if configured.
func (h *Hooks) SafeDispatch(correlationID, eventID string, queued bool) {
	if h != nil && h.OnDispatch != nil {
		h.OnDispatch(correlationID, eventID, queued)
	}
}

// SafeHandlerDone invokes OnHandlerDone if configured.
func (h *Hooks) SafeHandlerDone(correlationID string, duration time.Duration, err error) {
	if h != nil && h.OnHandlerDone != nil {
		h.OnHandlerDone(correlationID, duration, err)
	}
}

// SafeFutureTerminal invokes OnFutureTerminal if configured.
func (h *Hooks) SafeFutureTerminal(state string) {
	if h != nil && h.OnFutureTerminal != nil {
		h.OnFutureTerminal(state)
	}
}

// SafeQueueDepth invokes OnQueueDepth if configured.
func (h *Hooks) SafeQueueDepth(contextName string, depth int) {
	if h != nil && h.OnQueueDepth != nil {
		h.OnQueueDepth(contextName, depth)
	}
}
