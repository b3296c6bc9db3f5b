package scheduler

import (
	"context"
	"fmt"
	"time"

	"keyledger/internal/config"
	"keyledger/internal/db"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper drops expired cache entries and reports how many were removed.
type Sweeper interface {
	Sweep() int
}

type Scheduler struct {
	db      db.Service
	sweeper Sweeper
	cfg     config.SchedulerConfig
	logger  *zap.Logger
	c       *cron.Cron
}

// NewScheduler creates a Scheduler. A nil sweeper skips the cache sweep job.
func NewScheduler(store db.Service, sweeper Sweeper, cfg config.SchedulerConfig, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		db:      store,
		sweeper: sweeper,
		cfg:     cfg,
		logger:  log.With(zap.String("component", "scheduler")),
		c:       cron.New(),
	}
}

func (s *Scheduler) Start() error {
	if s.sweeper != nil && s.cfg.CacheSweep != "" {
		if _, err := s.c.AddFunc(s.cfg.CacheSweep, func() { s.SweepCache() }); err != nil {
			return fmt.Errorf("error scheduling cache sweep %q: %w", s.cfg.CacheSweep, err)
		}
	}
	if s.cfg.QuotaReport != "" {
		_, err := s.c.AddFunc(s.cfg.QuotaReport, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, _ = s.ReportExhausted(ctx)
		})
		if err != nil {
			return fmt.Errorf("error scheduling quota report %q: %w", s.cfg.QuotaReport, err)
		}
	}
	s.c.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.c.Entries())))
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

func (s *Scheduler) SweepCache() int {
	removed := s.sweeper.Sweep()
	if removed > 0 {
		s.logger.Debug("Swept expired cache entries", zap.Int("removed", removed))
	}
	return removed
}

// ReportExhausted logs every key whose usage has reached its monthly limit and returns how many there were.
// Keys exactly at the limit count, since an enforced quota already rejects them.
func (s *Scheduler) ReportExhausted(ctx context.Context) (int, error) {
	keys, err := s.db.ListExhausted(ctx)
	if err != nil {
		s.logger.Error("Failed to list exhausted keys", zap.Error(err))
		return 0, err
	}
	for _, k := range keys {
		s.logger.Warn("API key has exhausted its monthly limit",
			zap.String("id", k.ID),
			zap.String("name", k.Name),
			zap.Int64("usage", k.Usage),
			zap.Int64("monthly_limit", k.MonthlyLimit),
		)
	}
	s.logger.Info("Quota report finished", zap.Int("exhausted", len(keys)))
	return len(keys), nil
}
