package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/worqly/orchestrator/internal/credential"
)

const (
	// CleanupInterval is how often invalid and long-expired credentials
	// are purged.
	CleanupInterval = time.Hour
	// RefreshInterval is how often credentials nearing expiry are
	// proactively refreshed.
	RefreshInterval = 30 * time.Minute
	// RefreshLookahead is the expiry window the proactive refresh
	// covers. Wider than the on-demand lookahead so scheduled refreshes
	// stay ahead of demand.
	RefreshLookahead = time.Hour
)

// Maintenance runs the periodic credential housekeeping a beat scheduler
// would own: hourly cleanup and half-hourly proactive refresh.
type Maintenance struct {
	credentials *credential.Manager
	logger      *zap.SugaredLogger

	cleanupEvery time.Duration
	refreshEvery time.Duration
	lookahead    time.Duration
}

func NewMaintenance(credentials *credential.Manager, logger *zap.SugaredLogger) *Maintenance {
	return &Maintenance{
		credentials:  credentials,
		logger:       logger,
		cleanupEvery: CleanupInterval,
		refreshEvery: RefreshInterval,
		lookahead:    RefreshLookahead,
	}
}

// SetIntervals overrides the schedule, for tests.
func (m *Maintenance) SetIntervals(cleanup, refresh, lookahead time.Duration) {
	m.cleanupEvery = cleanup
	m.refreshEvery = refresh
	m.lookahead = lookahead
}

// Run blocks until the context is cancelled, firing the housekeeping
// jobs on their intervals.
func (m *Maintenance) Run(ctx context.Context) error {
	cleanup := time.NewTicker(m.cleanupEvery)
	defer cleanup.Stop()
	refresh := time.NewTicker(m.refreshEvery)
	defer refresh.Stop()

	m.logger.Infow("maintenance scheduler started",
		"cleanup_interval", m.cleanupEvery, "refresh_interval", m.refreshEvery)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleanup.C:
			m.runCleanup(ctx)
		case <-refresh.C:
			m.runRefresh(ctx)
		}
	}
}

func (m *Maintenance) runCleanup(ctx context.Context) {
	removed, err := m.credentials.CleanupExpired(ctx)
	if err != nil {
		m.logger.Errorw("credential cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		m.logger.Infow("cleaned up expired credentials", "removed", removed)
	}
}

func (m *Maintenance) runRefresh(ctx context.Context) {
	refreshed, err := m.credentials.RefreshExpiring(ctx, m.lookahead)
	if err != nil {
		m.logger.Errorw("proactive credential refresh failed", "error", err)
		return
	}
	if refreshed > 0 {
		m.logger.Infow("proactively refreshed credentials", "refreshed", refreshed)
	}
}
