// Package persist writes container state to durable storage as it changes.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/state"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Saver stores a persisted state snapshot.
type Saver interface {
	Save(ctx context.Context, ps model.PersistedState) error
}

// Persister saves the container a short while after it stops changing.
type Persister struct {
	state    *state.Container
	saver    Saver
	debounce time.Duration
	logger   *slog.Logger

	mu sync.Mutex
}

func New(c *state.Container, saver Saver, debounce time.Duration, logger *slog.Logger) *Persister {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Persister{
		state:    c,
		saver:    saver,
		debounce: debounce,
		logger:   logger,
	}
}

// Flush saves the current state immediately.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.saver.Save(ctx, p.state.Persisted()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Run saves after changes until ctx is done, then flushes once more.
func (p *Persister) Run(ctx context.Context) error {
	changes, cancel := p.state.Subscribe()
	defer cancel()

	timer := time.NewTimer(p.debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancelFlush()
			if err := p.Flush(flushCtx); err != nil {
				return fmt.Errorf("final flush: %w", err)
			}
			p.logger.Info("state flushed on shutdown")
			return nil

		case _, ok := <-changes:
			if !ok {
				return nil
			}
			pending = true
			timer.Reset(p.debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("persist state", "error", err)
			}
		}
	}
}
