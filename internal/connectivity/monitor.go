// Package connectivity tracks whether the backend is reachable and replays
// queued work when it comes back.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cartsync/internal/reconcile"
	"github.com/dukerupert/cartsync/internal/state"
)

const DefaultDrainDelay = time.Second

// Drainer replays the pending queue.
type Drainer interface {
	Drain(ctx context.Context) (reconcile.DrainResult, error)
}

// Monitor is a two-state online/offline machine. Going online schedules a
// single delayed drain; going offline cancels it.
type Monitor struct {
	state   *state.Container
	drainer Drainer
	delay   time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	online  bool
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func NewMonitor(c *state.Container, d Drainer, delay time.Duration, logger *slog.Logger) *Monitor {
	if delay <= 0 {
		delay = DefaultDrainDelay
	}
	return &Monitor{
		state:   c,
		drainer: d,
		delay:   delay,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Start sets the initial state. ctx is used for drains.
func (m *Monitor) Start(ctx context.Context, initialOnline bool) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if initialOnline {
		m.Online()
	} else {
		m.Offline()
	}
}

// Online handles a connectivity-restored signal.
func (m *Monitor) Online() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	transition := !m.online || m.state.Offline()
	m.online = true
	if !transition {
		return
	}

	m.logger.Info("connectivity restored", "drain_delay", m.delay)
	m.state.SetOffline(false)
	m.cancelLocked()
	m.wg.Add(1)
	m.timer = time.AfterFunc(m.delay, m.fire)
}

// Offline handles a connectivity-lost signal.
func (m *Monitor) Offline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online {
		m.logger.Info("connectivity lost")
	}
	m.online = false
	m.cancelLocked()
	m.state.SetOffline(true)
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Stop cancels a scheduled drain and waits for a running one.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.cancelLocked()
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) cancelLocked() {
	if m.timer != nil && m.timer.Stop() {
		m.wg.Done()
	}
	m.timer = nil
}

func (m *Monitor) fire() {
	defer m.wg.Done()

	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	if m.state.PendingCount() == 0 {
		return
	}
	res, err := m.drainer.Drain(ctx)
	if err != nil {
		m.logger.Warn("scheduled drain failed", "error", err)
		return
	}
	m.logger.Debug("scheduled drain finished", "drained", res.Drained, "skipped", res.Skipped)
}
