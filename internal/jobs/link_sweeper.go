// Package jobs contains the gateway's background loops. link_sweeper.go
// implements the LinkSweeper job, which periodically deactivates links whose
// expiry has passed. Expiry is already enforced per-request by the
// verification pipeline; the sweep keeps the active set small so hash lookups
// stay on the partial index and reporting queries see an honest is_active
// column.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/media-gateway/media-gateway/internal/telemetry"
)

// ExpiredDeactivator is the slice of the link store the sweeper needs.
type ExpiredDeactivator interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// LinkSweeper periodically deactivates expired links.
type LinkSweeper struct {
	links    ExpiredDeactivator
	interval time.Duration
	stopChan chan struct{}
}

// NewLinkSweeper creates a sweeper. intervalMinutes defaults to 60 when
// non-positive.
func NewLinkSweeper(links ExpiredDeactivator, intervalMinutes int) *LinkSweeper {
	if intervalMinutes <= 0 {
		intervalMinutes = 60
	}
	return &LinkSweeper{
		links:    links,
		interval: time.Duration(intervalMinutes) * time.Minute,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop. It runs one pass immediately, then repeats on
// the configured interval until ctx is cancelled or Stop is called.
func (s *LinkSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("link sweeper started", "interval", s.interval)

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			slog.Info("link sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("link sweeper stopped", "reason", ctx.Err())
			return
		}
	}
}

// Stop terminates the sweep loop.
func (s *LinkSweeper) Stop() {
	close(s.stopChan)
}

func (s *LinkSweeper) sweep(ctx context.Context) {
	swept, err := s.links.DeactivateExpired(ctx)
	if err != nil {
		slog.Error("link sweep failed", "error", err)
		return
	}
	if swept > 0 {
		telemetry.LinksSweptTotal.Add(float64(swept))
		slog.Info("link sweep completed", "deactivated", swept)
	}
}
