// Package sweep runs the scheduled maintenance job: expiring overdue
// credentials and pruning aged audit logs.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/suncrest/sungate/internal/store"
)

const runTimeout = 5 * time.Minute

// Sweeper owns the cron schedule. Run can also be invoked directly, which
// operators use to force a sweep out of schedule.
type Sweeper struct {
	store     store.Store
	retention time.Duration
	cron      *cron.Cron
}

// New creates a Sweeper that keeps audit logs for retentionDays.
func New(s store.Store, retentionDays int) *Sweeper {
	return &Sweeper{
		store:     s,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		cron:      cron.New(),
	}
}

// Start registers the job under the given cron spec and begins the schedule.
func (s *Sweeper) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if err := s.Run(ctx); err != nil {
			slog.Error("maintenance sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Run executes one sweep: flip credentials past their expiry, then prune
// usage and delivery logs older than the retention window. Partial progress
// is kept on error.
func (s *Sweeper) Run(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := s.store.ExpireOverdueCredentials(ctx, now)
	if err != nil {
		return err
	}

	cutoff := now.Add(-s.retention)
	usagePruned, err := s.store.PruneUsageLogs(ctx, cutoff)
	if err != nil {
		return err
	}
	deliveryPruned, err := s.store.PruneDeliveryLogs(ctx, cutoff)
	if err != nil {
		return err
	}

	slog.Info("maintenance sweep complete",
		"credentials_expired", expired,
		"usage_logs_pruned", usagePruned,
		"delivery_logs_pruned", deliveryPruned)
	return nil
}
