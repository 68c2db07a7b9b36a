// File: internal/retention/sweeper.go
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/internal/config"
	"github.com/xkilldash9x/pentestd/internal/observability"
)

const (
	defaultWindow   = 24 * time.Hour
	defaultInterval = time.Hour
)

// Store is the deletion hook the sweeper drives.
type Store interface {
	DeleteOlderThan(cutoff time.Time) (scans, reports int)
}

// Sweeper periodically removes scans and reports older than the retention
// window.
type Sweeper struct {
	store    Store
	window   time.Duration
	interval time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a sweeper. Non-positive durations fall back to a 24h window
// swept hourly.
func New(store Store, cfg config.RetentionConfig, metrics *observability.Metrics, logger *zap.Logger) *Sweeper {
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		store:    store,
		window:   window,
		interval: interval,
		metrics:  metrics,
		logger:   logger.Named("retention"),
		now:      time.Now,
	}
}

// Run sweeps once per interval until ctx is done. It always returns nil so it
// can sit in an errgroup next to the API server.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Retention sweeper started.",
		zap.Duration("window", s.window),
		zap.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(s.now())
		case <-ctx.Done():
			s.logger.Info("Retention sweeper stopped.")
			return nil
		}
	}
}

// SweepOnce deletes everything created at or before now minus the window.
func (s *Sweeper) SweepOnce(now time.Time) (scans, reports int) {
	cutoff := now.Add(-s.window)
	scans, reports = s.store.DeleteOlderThan(cutoff)

	s.metrics.RetentionRemoved("scan", scans)
	s.metrics.RetentionRemoved("report", reports)
	if scans > 0 || reports > 0 {
		s.logger.Info("Purged expired scans and reports.",
			zap.Int("scans", scans),
			zap.Int("reports", reports),
			zap.Time("cutoff", cutoff))
	} else {
		s.logger.Debug("Retention sweep found nothing to purge.", zap.Time("cutoff", cutoff))
	}
	return scans, reports
}
