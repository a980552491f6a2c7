package connectivity

import (
	"context"
	"log/slog"
	"time"
)

const DefaultProbeInterval = 15 * time.Second

// Pinger checks whether the backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober polls the backend and feeds transitions into a Monitor.
type Prober struct {
	pinger   Pinger
	monitor  *Monitor
	interval time.Duration
	logger   *slog.Logger
}

func NewProber(p Pinger, m *Monitor, interval time.Duration, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{
		pinger:   p,
		monitor:  m,
		interval: interval,
		logger:   logger,
	}
}

// Run probes immediately and then every interval until ctx is done. Every
// successful probe signals Online, so the container leaves offline mode
// (and drains) even when a failed request, not the prober, put it there.
// Offline is signalled only when the probe result changes.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *bool
	for {
		online := p.probe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case online:
			p.monitor.Online()
		case last == nil || *last:
			p.monitor.Offline()
		}
		last = &online

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Prober) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	if err := p.pinger.Ping(ctx); err != nil {
		p.logger.Debug("backend probe failed", "error", err)
		return false
	}
	return true
}
