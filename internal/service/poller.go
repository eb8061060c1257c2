package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/domain"
)

// DefaultPollInterval is how often the head of each stream is checked.
const DefaultPollInterval = 30 * time.Second

// pollTarget submits head checks (consumer-defined interface).
type pollTarget interface {
	Poll(stream string) (coordinator.Handle, error)
}

// Poller periodically asks for the head of some streams. Results arrive on
// the coordinator channel like any other fetch.
type Poller struct {
	target   pollTarget
	interval time.Duration
	streams  []string
	logger   *slog.Logger
}

func NewPoller(target pollTarget, interval time.Duration, logger *slog.Logger, streams ...string) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(streams) == 0 {
		streams = []string{domain.StreamHome}
	}
	return &Poller{target: target, interval: interval, streams: streams, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Poller) tick() {
	for _, stream := range p.streams {
		_, err := p.target.Poll(stream)
		switch {
		case err == nil, errors.Is(err, domain.ErrNotAuthenticated):
		case errors.Is(err, domain.ErrClosed):
			return
		default:
			// a full queue means plenty of work is pending already
			p.logger.Debug("poll skipped", "stream", stream, "error", err)
		}
	}
}
