package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haldorn/relay/dispatch"
	"github.com/haldorn/relay/econtext"
	"github.com/haldorn/relay/event"
)

// door is a test fixture with states {Stopped, Started, Paused}, with
// Paused timing out after a configured duration. Enter/Leave handlers run
// synchronously on the goroutine calling ChangeState (the test goroutine),
// while Timeout handlers run on the Context worker, so access is guarded by
// mu.
type door struct {
	*State

	mu          sync.Mutex
	lastHandler string
}

func (o *door) setLastHandler(name string) {
	o.mu.Lock()
	o.lastHandler = name
	o.mu.Unlock()
}

func (o *door) getLastHandler() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastHandler
}

func newDoor(d *dispatch.Dispatcher, ctx *econtext.Context, timeouts map[string]time.Duration) *door {
	obj := &door{}
	obj.State = New(obj, d, "Stopped", timeouts, nil)
	if err := d.Add(obj, nil, ctx); err != nil {
		panic(err)
	}
	return obj
}

func (o *door) Start() error { return o.ChangeState("Started", false) }
func (o *door) Pause() error { return o.ChangeState("Paused", false) }
func (o *door) Stop() error  { return o.ChangeState("Stopped", false) }

func (o *door) InStarted_OnEnter(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	o.setLastHandler("InStarted_OnEnter")
	return nil, nil
}
func (o *door) InPaused_OnEnter(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	o.setLastHandler("InPaused_OnEnter")
	return nil, nil
}
func (o *door) InStopped_OnEnter(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	o.setLastHandler("InStopped_OnEnter")
	return nil, nil
}
func (o *door) InStarted_OnLeave(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	return nil, nil
}
func (o *door) InPaused_OnLeave(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	return nil, nil
}
func (o *door) InStopped_OnLeave(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	return nil, nil
}

func newWiredState(t *testing.T, timeouts map[string]time.Duration) (*dispatch.Dispatcher, *econtext.Context, *door) {
	t.Helper()
	d := dispatch.New()
	ctx := econtext.New("c0", d, nil)
	ctx.Start()
	t.Cleanup(func() { ctx.Stop(time.Second) })
	obj := newDoor(d, ctx, timeouts)
	return d, ctx, obj
}

// TestStateFSMTransitions drives the door fixture through Stopped -> Started
// -> Paused -> Stopped and checks that each transition both updates
// CurrentState and dispatches the matching OnEnter handler.
func TestStateFSMTransitions(t *testing.T) {
	_, _, obj := newWiredState(t, map[string]time.Duration{"Paused": 30 * time.Second})

	require.NoError(t, obj.Start())
	require.Equal(t, "Started", obj.CurrentState())
	require.Equal(t, "InStarted_OnEnter", obj.getLastHandler())

	require.NoError(t, obj.Pause())
	require.Equal(t, "Paused", obj.CurrentState())
	require.Equal(t, "InPaused_OnEnter", obj.getLastHandler())

	require.NoError(t, obj.Stop())
	require.Equal(t, "Stopped", obj.CurrentState())
	require.Equal(t, "InStopped_OnEnter", obj.getLastHandler())
}

// TestChangeStateToSameStateIsNoOp covers the round-trip idempotence rule:
// changeState(s) where s == currentState dispatches nothing and leaves the
// handler trail untouched.
func TestChangeStateToSameStateIsNoOp(t *testing.T) {
	_, _, obj := newWiredState(t, nil)

	if err := obj.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	obj.setLastHandler("")

	if err := obj.ChangeState("Started", false) /* already Started */; err != nil {
		t.Fatalf("ChangeState: %v", err)
	}
	if obj.getLastHandler() != "" {
		t.Errorf("expected no handler invoked for a same-state transition, got %s", obj.getLastHandler())
	}
}

// TestStateTimeoutFires confirms a configured state timeout schedules and
// eventually delivers a Timeout event.
func TestStateTimeoutFires(t *testing.T) {
	_, _, obj := newWiredState(t, map[string]time.Duration{"Started": 20 * time.Millisecond})

	timedOut := make(chan struct{})

	if err := obj.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		for i := 0; i < 50; i++ {
			if obj.getLastHandler() == "InStarted_OnTimeout" {
				close(timedOut)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("Timeout event was never delivered")
	}
}

func (o *door) InStarted_OnTimeout(evt event.Identifiable, args ...interface{}) (interface{}, error) {
	o.setLastHandler("InStarted_OnTimeout")
	return nil, nil
}

// TestStopStateTimerCancelsBeforeFire ensures cancelling the FSM's timer
// before it fires prevents the Timeout event entirely.
func TestStopStateTimerCancelsBeforeFire(t *testing.T) {
	_, _, obj := newWiredState(t, map[string]time.Duration{"Started": 50 * time.Millisecond})

	if err := obj.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	obj.StopStateTimer()
	obj.setLastHandler("")

	time.Sleep(100 * time.Millisecond)
	if obj.getLastHandler() == "InStarted_OnTimeout" {
		t.Error("Timeout fired despite the timer being stopped")
	}
}
