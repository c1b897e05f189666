// Package econtext implements a serial event loop: a FIFO of pending
// Futures, a single owning worker, and start/stop/poll/run operations. A
// Context is a unit of isolation, not a worker pool — exactly one goroutine
// ever drains its queue, so anything pinned to the same Context never needs
// its own synchronization. The queue never drops or blocks a producer under
// load.
package econtext

import (
	"fmt"
	"sync"
	"time"

	"github.com/haldorn/relay/dispatch"
	"github.com/haldorn/relay/event"
	"github.com/haldorn/relay/future"
	"github.com/haldorn/relay/observability"
)

// Sender is the subset of *dispatch.Dispatcher a Context needs in order to
// turn a queued item into a deferred call. Defined as an interface so tests
// can supply a double without constructing a real Dispatcher.
type Sender interface {
	Send(evt event.Identifiable, src, dst interface{}, args ...interface{}) (future.Awaitable, error)
}

// item is either a queued *future.Future, a fired *future.ScheduledFuture,
// or the termination sentinel (when both fields are nil).
type item struct {
	fut   *future.Future
	sched *future.ScheduledFuture
	next  *item
}

// process runs the item's underlying call and reports the terminal state it
// reached (Completed/Exception/Cancelled) through hooks, if configured. A
// ScheduledFuture's Process is reported the same way as a plain Future's,
// since it embeds one.
func (it *item) process(hooks *observability.Hooks) {
	switch {
	case it.sched != nil:
		it.sched.Process()
		hooks.SafeFutureTerminal(string(it.sched.State()))
	case it.fut != nil:
		it.fut.Process()
		hooks.SafeFutureTerminal(string(it.fut.State()))
	}
}

// Context is a serial event loop. Exactly one worker goroutine drains its
// FIFO in order; handlers running on that worker need no further
// synchronization for state owned by objects pinned to this Context.
type Context struct {
	name       string
	dispatcher Sender
	hooks      *observability.Hooks

	mu      sync.Mutex
	cond    *sync.Cond
	head    *item
	tail    *item
	depth   int
	running bool
	doneCh  chan struct{}
}

// New constructs a Context named name, bound to dispatcher for the deferred
// sends its queued Futures will perform. hooks may be nil.
func New(name string, dispatcher Sender, hooks *observability.Hooks) *Context {
	c := &Context{name: name, dispatcher: dispatcher, hooks: hooks}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Name satisfies dispatch.ContextHandle.
func (c *Context) Name() string { return c.name }

func (c *Context) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("context %s (depth=%d, running=%v)", c.name, c.depth, c.running)
}

// Queue rejects a nil dst, builds a Future whose call is the deferred
// Dispatcher.Send(evt, src, dst, args...), appends it to the FIFO, and
// returns the Future. If the Dispatcher later resolves that send
// synchronously (a future.Mimic, because by the time the worker gets to it
// src and dst still share this Context), the Mimic is transparently
// unwrapped via Get so retrieving the outer Future yields the handler's
// actual return value rather than a wrapped Awaitable.
func (c *Context) Queue(evt event.Identifiable, src, dst interface{}, args ...interface{}) (*future.Future, error) {
	if dst == nil {
		return nil, &dispatch.Error{Kind: dispatch.KindInvalidArgument, Message: "queue requires a destination"}
	}
	fut := future.New(func() (interface{}, error) {
		awaitable, err := c.dispatcher.Send(evt, src, dst, args...)
		if err != nil {
			return nil, err
		}
		return awaitable.Get()
	})
	c.append(&item{fut: fut})
	return fut, nil
}

// Schedule rejects a nil dst, builds a ScheduledFuture whose scheduling
// function appends itself to this Context's FIFO and whose work is the
// deferred Dispatcher.Send, and returns it so the caller may cancel before
// or shortly after it fires.
func (c *Context) Schedule(delay time.Duration, evt event.Identifiable, src, dst interface{}, args ...interface{}) (*future.ScheduledFuture, error) {
	if dst == nil {
		return nil, &dispatch.Error{Kind: dispatch.KindInvalidArgument, Message: "schedule requires a destination"}
	}
	var sched *future.ScheduledFuture
	sched = future.NewScheduled(delay, func(self *future.ScheduledFuture) {
		c.append(&item{sched: self})
	}, func() (interface{}, error) {
		awaitable, err := c.dispatcher.Send(evt, src, dst, args...)
		if err != nil {
			return nil, err
		}
		return awaitable.Get()
	})
	return sched, nil
}

// append adds it to the tail of the FIFO and wakes one waiter. A nil item
// value (fut == nil && sched == nil) is the termination sentinel.
func (c *Context) append(it *item) {
	c.mu.Lock()
	if c.tail == nil {
		c.head, c.tail = it, it
	} else {
		c.tail.next = it
		c.tail = it
	}
	c.depth++
	depth := c.depth
	c.mu.Unlock()
	c.cond.Signal()
	c.hooks.SafeQueueDepth(c.name, depth)
}

// popBlocking waits until the FIFO is non-empty, then pops the head.
func (c *Context) popBlocking() *item {
	c.mu.Lock()
	for c.head == nil {
		c.cond.Wait()
	}
	it, depth := c.popLocked()
	c.mu.Unlock()
	c.hooks.SafeQueueDepth(c.name, depth)
	return it
}

// popNonBlocking pops the head if present, or returns (nil, false).
func (c *Context) popNonBlocking() (*item, bool) {
	c.mu.Lock()
	if c.head == nil {
		c.mu.Unlock()
		return nil, false
	}
	it, depth := c.popLocked()
	c.mu.Unlock()
	c.hooks.SafeQueueDepth(c.name, depth)
	return it, true
}

// popLocked removes and returns the head item and the resulting depth. The
// caller must hold c.mu.
func (c *Context) popLocked() (*item, int) {
	it := c.head
	c.head = it.next
	if c.head == nil {
		c.tail = nil
	}
	it.next = nil
	c.depth--
	return it, c.depth
}

// sentinel marks the end of the queue: a zero-value item.
func isSentinel(it *item) bool { return it.fut == nil && it.sched == nil }

// Start spawns the worker goroutine that calls Run.
func (c *Context) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.doneCh)
		c.Run()
	}()
}

// Run repeatedly pops from the FIFO in blocking mode, processing each item
// until it pops the termination sentinel. Processing panics or errors never
// escape the worker: Future.Process already recovers and captures them.
func (c *Context) Run() {
	for {
		it := c.popBlocking()
		if isSentinel(it) {
			return
		}
		it.process(c.hooks)
	}
}

// Poll is a non-blocking drain: while the queue is non-empty, pop and
// process one item (same sentinel semantics as Run). It exists so a
// Context can be embedded in an externally-driven loop instead of owning a
// dedicated worker goroutine.
func (c *Context) Poll() {
	for {
		it, ok := c.popNonBlocking()
		if !ok {
			return
		}
		if isSentinel(it) {
			return
		}
		it.process(c.hooks)
	}
}

// Stop appends the termination sentinel and waits up to timeout for the
// worker to exit, returning whether it did. A zero timeout waits
// indefinitely. Stop is a no-op, returning true, if the Context was never
// started (or was already stopped).
func (c *Context) Stop(timeout time.Duration) bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return true
	}
	c.running = false
	done := c.doneCh
	c.mu.Unlock()

	c.append(&item{})

	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

var _ dispatch.ContextHandle = (*Context)(nil)
