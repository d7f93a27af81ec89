package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/store"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
)

// HousekeepingService periodically removes accounts that never confirmed
// their email address within the retention window.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service.
// If interval is 0 or negative, defaults to 1 hour. If retention is 0 or
// negative, defaults to 7 days.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	return &HousekeepingService{
		Store:     store,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup deletes unconfirmed accounts created before now-Retention and
// returns how many were removed.
func (s *HousekeepingService) Cleanup(ctx context.Context) int {
	cutoff := time.Now().Add(-s.Retention)

	deleted, err := s.Store.Users().DeleteUnconfirmedBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to delete unconfirmed users", "error", err)
		return 0
	}

	for _, email := range deleted {
		s.Logger.Debug("deleted unconfirmed user", slogx.Email(email))
	}
	s.Logger.Info("housekeeping cleanup completed", "deleted_users", len(deleted))
	return len(deleted)
}
