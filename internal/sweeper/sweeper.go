// Package sweeper implements the expiry sweeper (C8): two periodic
// background tasks that evict idle sessions and idle registry entries.
//
// Grounded on the teacher's internal/collab/room.go Run() select-loop
// idleTimer/checkIdle (per-room timers), generalized into two
// time.Ticker-driven goroutines running once against the shared hub,
// since sessions/documents are no longer partitioned per room.
package sweeper

import (
	"context"
	"time"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/hub"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/logger"
)

// Config carries the sweeper's timers, matching spec §4.8's defaults.
type Config struct {
	SweepInterval    time.Duration // default 30s
	ExpiryThreshold  time.Duration // default 120s
	DocumentTTLCheck time.Duration // default 300s
	DocumentTTL      time.Duration // default 600s
}

// DefaultConfig returns spec §4.8's defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:    30 * time.Second,
		ExpiryThreshold:  120 * time.Second,
		DocumentTTLCheck: 300 * time.Second,
		DocumentTTL:      600 * time.Second,
	}
}

// Sweeper drives the two periodic tasks until its context is cancelled.
type Sweeper struct {
	hub *hub.Hub
	cfg Config
}

// New builds a sweeper over h.
func New(h *hub.Hub, cfg Config) *Sweeper {
	return &Sweeper{hub: h, cfg: cfg}
}

// Run blocks, running both periodic tasks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	go s.runSessionSweep(ctx)
	s.runDocumentEviction(ctx)
}

func (s *Sweeper) runSessionSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events := s.hub.CleanupExpiredSessions()
			if len(events) > 0 {
				logger.Info("sweeper: expired %d session event(s)", len(events))
			}
		}
	}
}

func (s *Sweeper) runDocumentEviction(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DocumentTTLCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.hub.EvictIdleDocuments(s.cfg.DocumentTTL)
			if len(evicted) > 0 {
				logger.Info("sweeper: evicted %d idle document(s)", len(evicted))
			}
		}
	}
}
