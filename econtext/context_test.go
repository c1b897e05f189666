package econtext

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haldorn/relay/dispatch"
	"github.com/haldorn/relay/event"
)

// recorder is the handler target for FIFO-ordering tests: each of its OnEN
// methods appends EN to order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) record(id string) {
	r.mu.Lock()
	r.order = append(r.order, id)
	r.mu.Unlock()
}

func (r *recorder) OnE0(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	r.record("E0")
	return nil, nil
}
func (r *recorder) OnE1(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	r.record("E1")
	return nil, nil
}
func (r *recorder) OnE2(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	r.record("E2")
	return nil, nil
}

func newWiredDispatcher(t *testing.T) (*dispatch.Dispatcher, *Context) {
	t.Helper()
	d := dispatch.New()
	ctx := New("c0", d, nil)
	return d, ctx
}

// TestThreadedContextDrainsThreeEvents checks that three events queued to
// the same object on a started Context are all processed, in order, by the
// time Stop returns.
func TestThreadedContextDrainsThreeEvents(t *testing.T) {
	d, ctx := newWiredDispatcher(t)
	obj := newRecorder()
	if err := d.Add(obj, nil, ctx); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx.Start()
	for _, id := range []string{"E0", "E1", "E2"} {
		if _, err := d.Queue(event.New(id), obj, obj); err != nil {
			t.Fatalf("Queue(%s): %v", id, err)
		}
	}
	time.Sleep(100 * time.Millisecond)
	if !ctx.Stop(time.Second) {
		t.Fatal("Stop did not return within timeout")
	}

	want := []string{"E0", "E1", "E2"}
	if len(obj.order) != len(want) {
		t.Fatalf("order = %v, want %v", obj.order, want)
	}
	for i, id := range want {
		if obj.order[i] != id {
			t.Fatalf("order[%d] = %q, want %q (full: %v)", i, obj.order[i], id, obj.order)
		}
	}
}

// TestPolledContextDrainsThreeEvents checks the same setup as
// TestThreadedContextDrainsThreeEvents, but driven by Poll on the calling
// goroutine instead of a worker.
func TestPolledContextDrainsThreeEvents(t *testing.T) {
	d, ctx := newWiredDispatcher(t)
	obj := newRecorder()
	if err := d.Add(obj, nil, ctx); err != nil {
		t.Fatalf("Add: %v", err)
	}

	for _, id := range []string{"E0", "E1", "E2"} {
		if _, err := d.Queue(event.New(id), obj, obj); err != nil {
			t.Fatalf("Queue(%s): %v", id, err)
		}
	}
	ctx.Poll()

	want := []string{"E0", "E1", "E2"}
	if len(obj.order) != len(want) {
		t.Fatalf("order = %v, want %v", obj.order, want)
	}
	for i, id := range want {
		if obj.order[i] != id {
			t.Fatalf("order[%d] = %q, want %q", i, obj.order[i], id)
		}
	}
}

// TestQueueUnwrapsSynchronousResult exercises the case where, by the time
// the worker dequeues the outer Future and the deferred Send runs, src and
// dst still share this Context: the Dispatcher resolves synchronously and
// hands back a future.Mimic. Retrieving the outer Future must yield the
// handler's own return value, not the Mimic.
func TestQueueUnwrapsSynchronousResult(t *testing.T) {
	d, ctx := newWiredDispatcher(t)
	obj := &echoObj{}
	if err := d.Add(obj, nil, ctx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ctx.Start()
	defer ctx.Stop(time.Second)

	fut, err := d.Queue(event.New("Echo"), obj, obj, "hello")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	result, err := fut.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result != "hello" {
		t.Fatalf("result = %#v, want %q (got a wrapped Awaitable instead of the handler's value?)", result, "hello")
	}
}

type echoObj struct{}

func (e *echoObj) OnEcho(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	return args[0], nil
}

// TestQueueRejectsNilDestination checks that Queue rejects a nil dst rather
// than enqueueing work with nowhere to deliver it.
func TestQueueRejectsNilDestination(t *testing.T) {
	_, ctx := newWiredDispatcher(t)
	if _, err := ctx.Queue(event.New("E0"), nil, nil); err == nil {
		t.Fatal("expected an error for a nil destination")
	}
}

// TestScheduleFiresOntoThisContext exercises Schedule end-to-end: a
// ScheduledFuture with a zero delay appends itself to the Context's FIFO,
// and the worker eventually runs it.
func TestScheduleFiresOntoThisContext(t *testing.T) {
	d, ctx := newWiredDispatcher(t)
	obj := &echoObj{}
	if err := d.Add(obj, nil, ctx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ctx.Start()
	defer ctx.Stop(time.Second)

	sched, err := d.Schedule(0, event.New("Echo"), obj, obj, "scheduled")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	result, err := sched.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result != "scheduled" {
		t.Fatalf("result = %#v, want %q", result, "scheduled")
	}
}

// TestStopIsIdempotent ensures a second Stop call on an already-stopped
// Context does not block or panic.
func TestStopIsIdempotent(t *testing.T) {
	_, ctx := newWiredDispatcher(t)
	ctx.Start()
	if !ctx.Stop(time.Second) {
		t.Fatal("first Stop did not return within timeout")
	}
	if !ctx.Stop(time.Second) {
		t.Fatal("second Stop did not return true")
	}
}

// TestPollIsANoOpOnEmptyQueue ensures Poll returns immediately with
// nothing queued.
func TestPollIsANoOpOnEmptyQueue(t *testing.T) {
	_, ctx := newWiredDispatcher(t)
	done := make(chan struct{})
	go func() {
		ctx.Poll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll blocked on an empty queue")
	}
}

// taggedRecorder records every event ID its OnDefault handler is called
// with, in the order the Context's worker processes them.
type taggedRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *taggedRecorder) OnDefault(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	r.mu.Lock()
	r.order = append(r.order, evt.ID())
	r.mu.Unlock()
	return nil, nil
}

// TestConcurrentProducersPreserveFIFOPerProducer has several goroutines
// call Queue on the same Context at once. Queue's append is guarded by the
// Context's own lock, so no enqueue is lost or corrupted under concurrent
// producers, and each producer's own events still come out of the single
// worker in the order that producer sent them, even though producers race
// each other for a position in the FIFO.
func TestConcurrentProducersPreserveFIFOPerProducer(t *testing.T) {
	const producers = 8
	const perProducer = 50

	d, ctx := newWiredDispatcher(t)
	obj := &taggedRecorder{}
	if err := d.Add(obj, nil, ctx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ctx.Start()

	var grp errgroup.Group
	for p := 0; p < producers; p++ {
		p := p
		grp.Go(func() error {
			for i := 0; i < perProducer; i++ {
				id := fmt.Sprintf("P%d_%03d", p, i)
				if _, err := d.Queue(event.New(id), obj, obj); err != nil {
					return fmt.Errorf("Queue(%s): %w", id, err)
				}
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		t.Fatalf("concurrent producers: %v", err)
	}

	if !ctx.Stop(5 * time.Second) {
		t.Fatal("Stop did not return within timeout")
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()
	if len(obj.order) != producers*perProducer {
		t.Fatalf("got %d processed events, want %d", len(obj.order), producers*perProducer)
	}

	lastSeq := make(map[int]int)
	for _, id := range obj.order {
		var p, seq int
		if _, err := fmt.Sscanf(id, "P%d_%d", &p, &seq); err != nil {
			t.Fatalf("unparseable event id %q: %v", id, err)
		}
		if prev, ok := lastSeq[p]; ok && seq != prev+1 {
			t.Fatalf("producer %d: event %d arrived out of order after %d", p, seq, prev)
		}
		lastSeq[p] = seq
	}
	for p := 0; p < producers; p++ {
		if lastSeq[p] != perProducer-1 {
			t.Fatalf("producer %d: last seen sequence %d, want %d", p, lastSeq[p], perProducer-1)
		}
	}
}
