package logstore

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/pkg/logger"
)

const (
	// DefaultRetentionDays is the default retention for daily
	// context-summary files
	DefaultRetentionDays = 30
	// retentionSchedule runs the sweep daily at 2 AM
	retentionSchedule = "0 2 * * *"
)

// RetentionService periodically deletes day-segmented context-summary
// files older than the retention window. The size-rotated main log is
// already bounded by its backup cap and is not touched here.
type RetentionService struct {
	store         *Store
	cron          *cron.Cron
	retentionDays int
	mu            sync.Mutex
}

// NewRetentionService creates a retention sweeper for the given store.
func NewRetentionService(store *Store, retentionDays int) *RetentionService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &RetentionService{
		store:         store,
		cron:          cron.New(),
		retentionDays: retentionDays,
	}
}

// Start schedules the daily sweep and runs one immediately in the
// background.
func (s *RetentionService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cron.AddFunc(retentionSchedule, s.sweep); err != nil {
		logger.Error("Failed to schedule log retention sweep", zap.Error(err))
		return err
	}
	s.cron.Start()

	logger.Info("Log retention service started",
		zap.String("schedule", retentionSchedule),
		zap.Int("retention_days", s.retentionDays),
	)

	go s.sweep()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *RetentionService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		logger.Info("Log retention service stopped")
	}
}

// sweep deletes context files whose day is older than the retention
// window. File deletion failures are logged and skipped; the next sweep
// retries them.
func (s *RetentionService) sweep() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays).Format(contextDayLayout)

	files, err := s.store.ContextFiles()
	if err != nil {
		logger.Error("Log retention sweep failed to list files", zap.Error(err))
		return
	}

	removed := 0
	for _, path := range files {
		day := dayFromName(filepath.Base(path))
		// Day-named files sort lexically in date order.
		if day >= cutoff {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("Failed to remove expired context file",
				zap.String("file", path),
				zap.Error(err),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("Log retention sweep completed",
			zap.Int("removed", removed),
			zap.String("cutoff", cutoff),
		)
	}
}
