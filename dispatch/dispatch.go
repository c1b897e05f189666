// Package dispatch implements the process-wide Node registry and event
// router. It owns no worker goroutines itself: cross-context delivery is
// handed off to whatever implements ContextHandle for the destination
// Node, so the router never needs to know how a Context actually runs its
// queue, only that it has one.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haldorn/relay/delegate"
	"github.com/haldorn/relay/event"
	"github.com/haldorn/relay/future"
	"github.com/haldorn/relay/observability"
)

// ContextHandle is the subset of econtext.Context the Dispatcher needs.
// Declaring it here (rather than importing the econtext package) keeps the
// dependency one-directional: econtext imports dispatch to drive Send from
// inside a queued Future, dispatch never imports econtext. Any type with
// this method set can serve as a Node's context, including test doubles.
type ContextHandle interface {
	Name() string
	Queue(evt event.Identifiable, src, dst interface{}, args ...interface{}) (*future.Future, error)
	Schedule(delay time.Duration, evt event.Identifiable, src, dst interface{}, args ...interface{}) (*future.ScheduledFuture, error)
}

// Node is the Dispatcher's per-object metadata: the object's parent (if
// any), the Context it is pinned to, and the set of other Nodes listening
// for its notify() fan-outs.
type Node struct {
	Obj     interface{}
	Parent  interface{}
	Context ContextHandle

	mu        sync.Mutex
	listeners map[*Node]struct{}
}

func (n *Node) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ctxName := "<none>"
	if n.Context != nil {
		ctxName = n.Context.Name()
	}
	return fmt.Sprintf("obj: %v, context: %s, listeners: %d", n.Obj, ctxName, len(n.listeners))
}

// ListenerCount reports how many Nodes are currently listening to this one.
func (n *Node) ListenerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// Dispatcher is the process-wide registry and router. It is not forced to
// be a singleton: construct one with New for tests and isolated components,
// or use Default/ResetDefault to share one process-wide instance.
type Dispatcher struct {
	Delegator *delegate.Delegator
	Hooks     *observability.Hooks

	mu    sync.RWMutex
	nodes map[interface{}]*Node
}

// New constructs an empty Dispatcher with the default Delegator
// configuration and no observability hooks.
func New() *Dispatcher {
	return &Dispatcher{
		Delegator: delegate.New(),
		nodes:     make(map[interface{}]*Node),
	}
}

var (
	defaultMu   sync.Mutex
	defaultInst *Dispatcher
)

// Default returns the lazily-initialized process-wide Dispatcher.
func Default() *Dispatcher {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInst == nil {
		defaultInst = New()
	}
	return defaultInst
}

// ResetDefault discards the process-wide Dispatcher so the next call to
// Default starts fresh. Intended for tests that must exercise the
// singleton path in isolation from one another.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInst = nil
}

// Add registers obj with the Dispatcher. If ctx is nil, the context is
// inherited from parent's Node. Add rejects a nil obj, and rejects a
// request that, after inheritance, still has no context.
func (d *Dispatcher) Add(obj interface{}, parent interface{}, ctx ContextHandle) error {
	if obj == nil {
		return newError(KindInvalidArgument, "a node cannot be added without an object")
	}

	if ctx == nil && parent != nil {
		if parentNode, err := d.GetNode(parent); err == nil {
			ctx = parentNode.Context
		}
	}
	if ctx == nil {
		return newError(KindInvalidArgument, "a node cannot be added without a context (object %v)", obj)
	}

	node := &Node{Obj: obj, Parent: parent, Context: ctx, listeners: make(map[*Node]struct{})}

	d.mu.Lock()
	d.nodes[obj] = node
	d.mu.Unlock()

	label := fmt.Sprintf("%v", obj)
	d.Hooks.SafeLog("debug", "node added", map[string]any{"context": ctx.Name()})
	d.Hooks.SafeNodeAdded(label)
	return nil
}

// Remove unregisters obj. obj's Node is also scrubbed from every other
// Node's listener set, so a removed Node can never linger as a dangling
// listener entry on someone else's Node.
func (d *Dispatcher) Remove(obj interface{}) error {
	if obj == nil {
		return newError(KindInvalidArgument, "a node cannot be removed without an object")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	removed, ok := d.nodes[obj]
	if !ok {
		return newError(KindUnknownNode, "cannot find the node for object %v", obj)
	}
	delete(d.nodes, obj)

	for _, other := range d.nodes {
		other.mu.Lock()
		delete(other.listeners, removed)
		other.mu.Unlock()
	}
	d.Hooks.SafeNodeRemoved(fmt.Sprintf("%v", obj))
	return nil
}

// NodeInfo is a snapshot of one registered Node, labeled with obj's %v
// form since map keys of type interface{} are not otherwise printable to a
// caller that only has the Dispatcher.
type NodeInfo struct {
	Label         string `json:"label"`
	Context       string `json:"context"`
	ListenerCount int    `json:"listener_count"`
}

// Snapshot returns a point-in-time NodeInfo for every registered Node, for
// introspection callers such as server.Server. It takes no lock on
// individual Nodes beyond what String/ListenerCount already do internally.
func (d *Dispatcher) Snapshot() []NodeInfo {
	d.mu.RLock()
	nodes := make([]*Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		nodes = append(nodes, n)
	}
	d.mu.RUnlock()

	infos := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		ctxName := "<none>"
		if n.Context != nil {
			ctxName = n.Context.Name()
		}
		infos = append(infos, NodeInfo{
			Label:         fmt.Sprintf("%v", n.Obj),
			Context:       ctxName,
			ListenerCount: n.ListenerCount(),
		})
	}
	return infos
}

// GetNode looks up the Node for obj.
func (d *Dispatcher) GetNode(obj interface{}) (*Node, error) {
	if obj == nil {
		return nil, newError(KindInvalidArgument, "must specify an object")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	node, ok := d.nodes[obj]
	if !ok {
		return nil, newError(KindUnknownNode, "cannot find the node for object %v", obj)
	}
	return node, nil
}

// AddListener makes dst a listener of src: future notify(...) calls from
// src will also be queued to dst.
func (d *Dispatcher) AddListener(src, dst interface{}) error {
	srcNode, err := d.GetNode(src)
	if err != nil {
		return err
	}
	dstNode, err := d.GetNode(dst)
	if err != nil {
		return err
	}
	srcNode.mu.Lock()
	srcNode.listeners[dstNode] = struct{}{}
	srcNode.mu.Unlock()
	return nil
}

// RemoveListener undoes AddListener. Removing a listener that was never
// added is a no-op.
func (d *Dispatcher) RemoveListener(src, dst interface{}) error {
	srcNode, err := d.GetNode(src)
	if err != nil {
		return err
	}
	dstNode, err := d.GetNode(dst)
	if err != nil {
		return err
	}
	srcNode.mu.Lock()
	delete(srcNode.listeners, dstNode)
	srcNode.mu.Unlock()
	return nil
}

// Send routes evt from src to dst. If src and dst share a Context, the
// handler runs synchronously on the calling goroutine and the result is
// wrapped in a future.Mimic; otherwise it is queued on dst's Context and a
// future.Future is returned instead.
func (d *Dispatcher) Send(evt event.Identifiable, src, dst interface{}, args ...interface{}) (future.Awaitable, error) {
	return d.route(evt, src, dst, false, args...)
}

// Queue routes evt from src to dst and always queues it, even when src and
// dst share a Context.
func (d *Dispatcher) Queue(evt event.Identifiable, src, dst interface{}, args ...interface{}) (future.Awaitable, error) {
	return d.route(evt, src, dst, true, args...)
}

// Schedule arranges for evt to be queued onto dst's Context after delay.
// It rejects a dst Node without a context.
func (d *Dispatcher) Schedule(delay time.Duration, evt event.Identifiable, src, dst interface{}, args ...interface{}) (*future.ScheduledFuture, error) {
	srcNode, err := d.resolveSrc(src)
	if err != nil {
		return nil, err
	}
	dstNode, err := d.GetNode(dst)
	if err != nil {
		return nil, err
	}
	if dstNode.Context == nil {
		return nil, newError(KindMissingContext, "destination node %v has no context", dst)
	}
	return dstNode.Context.Schedule(delay, evt, srcNode.Obj, dstNode.Obj, args...)
}

// Notify fans evt out to every Node currently listening to src. Every
// delivery is queued, even to a listener sharing src's context: a fan-out
// to N listeners must never let listener 1's handler run src's own
// goroutine before listener 2 has even been queued.
func (d *Dispatcher) Notify(evt event.Identifiable, src interface{}, args ...interface{}) error {
	srcNode, err := d.resolveSrc(src)
	if err != nil {
		return err
	}

	srcNode.mu.Lock()
	listeners := make([]*Node, 0, len(srcNode.listeners))
	for l := range srcNode.listeners {
		listeners = append(listeners, l)
	}
	srcNode.mu.Unlock()

	for _, dstNode := range listeners {
		if _, err := d.routeNodes(evt, srcNode, dstNode, true, args...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) resolveSrc(src interface{}) (*Node, error) {
	if src == nil {
		return nil, newError(KindInvalidArgument, "must specify a source object")
	}
	return d.GetNode(src)
}

func (d *Dispatcher) route(evt event.Identifiable, src, dst interface{}, queued bool, args ...interface{}) (future.Awaitable, error) {
	srcNode, err := d.resolveSrc(src)
	if err != nil {
		return nil, err
	}
	dstNode, err := d.GetNode(dst)
	if err != nil {
		return nil, err
	}
	return d.routeNodes(evt, srcNode, dstNode, queued, args...)
}

// routeNodes is the internal router: same-context traffic runs synchronously
// unless the caller already asked for queued delivery; cross-context traffic
// is always forced queued, since there is no shared worker to run it on
// synchronously without risking the caller's own goroutine doing someone
// else's work.
func (d *Dispatcher) routeNodes(evt event.Identifiable, srcNode, dstNode *Node, queued bool, args ...interface{}) (future.Awaitable, error) {
	if evt == nil {
		return nil, newError(KindInvalidArgument, "must specify an event")
	}
	correlationID := uuid.NewString()

	if srcNode.Context == nil || dstNode.Context == nil || srcNode.Context != dstNode.Context {
		queued = true
	}

	d.Hooks.SafeDispatch(correlationID, evt.ID(), queued)

	if queued {
		if dstNode.Context == nil {
			return nil, newError(KindMissingContext, "destination node %v has no context", dstNode.Obj)
		}
		return dstNode.Context.Queue(evt, srcNode.Obj, dstNode.Obj, args...)
	}

	start := time.Now()
	result, err := d.delegateSync(evt, dstNode.Obj, args...)
	d.Hooks.SafeHandlerDone(correlationID, time.Since(start), err)
	return future.NewMimic(result, err), nil
}

// delegateSync resolves and, if found, calls a handler on obj. A resolution
// miss is logged at debug and returns (nil, nil): an object with no handler
// for an event is a normal, expected outcome, not a failure to surface to
// the caller.
func (d *Dispatcher) delegateSync(evt event.Identifiable, obj interface{}, args ...interface{}) (interface{}, error) {
	handler, resolved, found := d.Delegator.GetHandler(obj, evt)
	if !found {
		d.Hooks.SafeLog("debug", "unhandled event", map[string]any{"event": evt.ID()})
		return nil, nil
	}
	return handler(resolved, args...)
}
