// Package history prunes recorded blend cycles past their retention.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitmuster/resultblend/pkg/config"
	"github.com/bitmuster/resultblend/pkg/store"
	"github.com/sirupsen/logrus"
)

// Service defines the interface for history retention.
type Service interface {
	Start(ctx context.Context) error
	Stop() error

	// Prune deletes blends older than the retention window.
	Prune(ctx context.Context) (int64, error)
}

// service implements Service.
type service struct {
	log   logrus.FieldLogger
	cfg   config.HistoryConfig
	store store.Store
	now   func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Ensure service implements Service.
var _ Service = (*service)(nil)

// NewService creates a new history retention service.
func NewService(log logrus.FieldLogger, cfg config.HistoryConfig, st store.Store) Service {
	return &service{
		log:   log.WithField("component", "history"),
		cfg:   cfg,
		store: st,
		now:   time.Now,
	}
}

// Start begins the cleanup loop if retention is enabled.
func (s *service) Start(ctx context.Context) error {
	if s.cfg.RetentionDays <= 0 {
		s.log.Info("History retention is disabled")

		return nil
	}

	if s.cfg.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", s.cfg.CleanupInterval)
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)

	go s.cleanupLoop(ctx)

	return nil
}

// Stop stops the cleanup loop.
func (s *service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	return nil
}

// Prune deletes blends that finished before the retention window.
func (s *service) Prune(ctx context.Context) (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)

	count, err := s.store.DeleteOldBlends(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old blends: %w", err)
	}

	return count, nil
}

func (s *service) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	s.log.WithFields(logrus.Fields{
		"retention_days":   s.cfg.RetentionDays,
		"cleanup_interval": s.cfg.CleanupInterval,
	}).Info("Starting blend history cleanup")

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping blend history cleanup")

			return
		case <-ticker.C:
			count, err := s.Prune(ctx)
			if err != nil {
				s.log.WithError(err).Error("Failed to clean up old blends")
			} else if count > 0 {
				s.log.WithField("deleted_count", count).Info("Cleaned up old blends")
			}
		}
	}
}
