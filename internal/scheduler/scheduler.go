// Package scheduler drives the periodic valuation cycle: an optional one-time
// historical backfill at startup, an immediate capture, then captures on a
// fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
)

// Scheduler owns the cron runner for snapshot captures.
type Scheduler struct {
	cron            *cron.Cron
	snapshotService *service.SnapshotService
	interval        time.Duration
	backfillDays    int
}

// New creates a Scheduler capturing snapshots every interval. backfillDays
// controls the startup backfill; zero disables it.
func New(snapshotService *service.SnapshotService, interval time.Duration, backfillDays int) *Scheduler {
	return &Scheduler{
		cron:            cron.New(),
		snapshotService: snapshotService,
		interval:        interval,
		backfillDays:    backfillDays,
	}
}

// Start runs the backfill and first capture synchronously, then starts the
// periodic schedule. Backfill and capture failures are logged, not fatal:
// the exchange may be temporarily unreachable at boot.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.backfillDays > 0 {
		created, err := s.snapshotService.Backfill(ctx, s.backfillDays)
		if err != nil {
			log.Printf("Warning: backfill failed: %v", err)
		} else if created > 0 {
			log.Printf("Backfilled %d historical snapshots", created)
		}
	}

	if _, err := s.snapshotService.Capture(ctx); err != nil {
		log.Printf("Warning: initial snapshot capture failed: %v", err)
	}

	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		defer cancel()
		if _, err := s.snapshotService.Capture(ctx); err != nil {
			log.Printf("Warning: scheduled snapshot capture failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule snapshot capture: %w", err)
	}

	s.cron.Start()
	log.Printf("Snapshot scheduler started, pulling every %s", s.interval)
	return nil
}

// Stop halts the schedule and waits for a running capture to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
