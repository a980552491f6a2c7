package connectivity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/reconcile"
	"github.com/dukerupert/cartsync/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testDelay = 20 * time.Millisecond

type fakeDrainer struct {
	state *state.Container
	calls atomic.Int32
	done  chan struct{}
}

func (f *fakeDrainer) Drain(ctx context.Context) (reconcile.DrainResult, error) {
	f.calls.Add(1)
	n := f.state.PendingCount()
	f.state.CommitDrain(n, nil)
	if f.done != nil {
		f.done <- struct{}{}
	}
	return reconcile.DrainResult{Drained: n, Requests: 1}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queuedContainer() *state.Container {
	c := state.New()
	c.SetCurrentList(&model.ShoppingList{ID: "10", Items: []model.Item{{ID: "1", Name: "Eggs"}}})
	c.SetOffline(true)
	c.ToggleItem("1", true, true)
	return c
}

func TestOnlineTransitionDrainsOnce(t *testing.T) {
	c := queuedContainer()
	d := &fakeDrainer{state: c, done: make(chan struct{}, 1)}
	m := NewMonitor(c, d, testDelay, testLogger())
	defer m.Stop()

	m.Start(context.Background(), false)
	m.Online()
	if c.Offline() {
		t.Error("online signal should clear offline mode")
	}
	m.Online() // already online, no second drain

	select {
	case <-d.done:
	case <-time.After(time.Second):
		t.Fatal("drain was not scheduled")
	}
	time.Sleep(2 * testDelay)
	if got := d.calls.Load(); got != 1 {
		t.Errorf("drain calls = %d, want 1", got)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d", c.PendingCount())
	}
}

func TestOfflineCancelsScheduledDrain(t *testing.T) {
	c := queuedContainer()
	d := &fakeDrainer{state: c}
	m := NewMonitor(c, d, testDelay, testLogger())
	defer m.Stop()

	m.Start(context.Background(), false)
	m.Online()
	m.Offline()

	time.Sleep(3 * testDelay)
	if got := d.calls.Load(); got != 0 {
		t.Errorf("drain calls = %d, want 0", got)
	}
	if !c.Offline() {
		t.Error("expected offline mode")
	}
}

func TestEmptyQueueSkipsDrain(t *testing.T) {
	c := state.New()
	d := &fakeDrainer{state: c}
	m := NewMonitor(c, d, testDelay, testLogger())

	m.Start(context.Background(), false)
	m.Online()
	time.Sleep(3 * testDelay)
	m.Stop()

	if got := d.calls.Load(); got != 0 {
		t.Errorf("drain calls = %d, want 0", got)
	}
}

func TestRestoredQueueDrainsOnStart(t *testing.T) {
	src := queuedContainer()
	c := state.New()
	c.Restore(src.Persisted())

	d := &fakeDrainer{state: c, done: make(chan struct{}, 1)}
	m := NewMonitor(c, d, testDelay, testLogger())
	defer m.Stop()

	m.Start(context.Background(), true)
	select {
	case <-d.done:
	case <-time.After(time.Second):
		t.Fatal("restored queue was not drained")
	}
}

func TestStopCancelsTimer(t *testing.T) {
	c := queuedContainer()
	d := &fakeDrainer{state: c}
	m := NewMonitor(c, d, time.Hour, testLogger())

	m.Start(context.Background(), false)
	m.Online()
	m.Stop()
	m.Online()

	if got := d.calls.Load(); got != 0 {
		t.Errorf("drain calls = %d, want 0", got)
	}
}

type scriptedPinger struct {
	mu      sync.Mutex
	results []error
	pings   chan struct{}
}

func (p *scriptedPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	var err error
	if len(p.results) > 0 {
		err, p.results = p.results[0], p.results[1:]
	}
	p.mu.Unlock()
	select {
	case p.pings <- struct{}{}:
	default:
	}
	return err
}

func TestProberFeedsTransitions(t *testing.T) {
	c := state.New()
	d := &fakeDrainer{state: c}
	m := NewMonitor(c, d, testDelay, testLogger())
	defer m.Stop()

	down := errors.New("connection refused")
	p := &scriptedPinger{results: []error{down, down, nil}, pings: make(chan struct{}, 8)}
	prober := NewProber(p, m, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- prober.Run(ctx) }()

	deadline := time.After(time.Second)
	for !m.IsOnline() {
		select {
		case <-p.pings:
		case <-deadline:
			t.Fatal("prober never reported online")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
	if c.Offline() {
		t.Error("container should be online after probe succeeded")
	}
}

func TestProberRecoversOfflineSetElsewhere(t *testing.T) {
	c := queuedContainer()
	d := &fakeDrainer{state: c, done: make(chan struct{}, 1)}
	m := NewMonitor(c, d, testDelay, testLogger())
	defer m.Stop()

	// The monitor already believes it is online; a failed request then
	// flipped the container offline.
	m.Start(context.Background(), true)
	select {
	case <-d.done:
	case <-time.After(time.Second):
		t.Fatal("initial drain did not run")
	}
	c.SetOffline(true)
	c.ToggleItem("1", false, true)

	p := &scriptedPinger{pings: make(chan struct{}, 8)}
	prober := NewProber(p, m, 5*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- prober.Run(ctx) }()

	select {
	case <-d.done:
	case <-time.After(time.Second):
		t.Fatal("queue was never drained while probes succeeded")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
	if c.Offline() || c.PendingCount() != 0 {
		t.Errorf("offline = %v, pending = %d", c.Offline(), c.PendingCount())
	}
}

type ctxDrainer struct {
	errs chan error
}

func (d *ctxDrainer) Drain(ctx context.Context) (reconcile.DrainResult, error) {
	d.errs <- ctx.Err()
	return reconcile.DrainResult{}, ctx.Err()
}

func TestDrainUsesStartContext(t *testing.T) {
	c := queuedContainer()
	d := &ctxDrainer{errs: make(chan error, 1)}
	m := NewMonitor(c, d, testDelay, testLogger())
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, true)
	cancel()

	select {
	case err := <-d.errs:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("drain ctx err = %v, want canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("drain did not run")
	}
}
