package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/pkg/config"
)

type shiftExpirer interface {
	ExpireEnded(ctx context.Context, cutoff time.Time) (int, error)
}

// ShiftSweeper periodically retires shifts whose end time is older than the
// configured grace period.
type ShiftSweeper struct {
	expirer shiftExpirer
	metrics *MetricsService
	logger  *zap.Logger
	cfg     config.SweeperConfig
	now     func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewShiftSweeper constructs a sweeper. It does nothing until Start.
func NewShiftSweeper(expirer shiftExpirer, metrics *MetricsService, logger *zap.Logger, cfg config.SweeperConfig) *ShiftSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	return &ShiftSweeper{
		expirer: expirer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start registers the sweep on the cron schedule. A disabled sweeper is a no-op.
func (s *ShiftSweeper) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC), cron.WithSeconds())
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("shift sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register shift sweeper %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("shift sweeper started", zap.String("schedule", s.cfg.Schedule), zap.Duration("grace", s.cfg.Grace))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end.
func (s *ShiftSweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep and returns the number of retired shifts.
func (s *ShiftSweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cfg.Grace)
	expired, err := s.expirer.ExpireEnded(ctx, cutoff)
	if expired > 0 {
		s.metrics.RecordExpiredShifts(expired)
		s.logger.Info("expired shifts retired", zap.Int("count", expired), zap.Time("cutoff", cutoff))
	}
	return expired, err
}
