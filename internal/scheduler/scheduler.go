package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/quotabl/quotabl/internal/clock"
	obsmetrics "github.com/quotabl/quotabl/internal/observability/metrics"
	"github.com/quotabl/quotabl/internal/ratelimit"
	validationdomain "github.com/quotabl/quotabl/internal/validation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const expireLockKey = "quotabl:scheduler:expire_validations"

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	ValidationSvc validationdomain.Service
	Locker        *ratelimit.Locker `optional:"true"`
	Config        Config            `optional:"true"`
}

type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	validationSvc validationdomain.Service
	locker        *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.ValidationSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		validationSvc: p.ValidationSvc,
		locker:        p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	metrics := obsmetrics.Default()
	metrics.IncJobRun(name)

	err := fn(ctx)
	metrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	metrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
		)
		return err
	}
	s.log.Error("job failed",
		zap.String("job", name),
		zap.Error(err),
	)
	return err
}

// ExpireValidationsJob flips overdue pending validation requests to expired.
// The lock only avoids redundant sweeps across instances; expiry itself is
// idempotent, so a lost lock is harmless.
func (s *Scheduler) ExpireValidationsJob(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, expireLockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("expire lock unavailable, proceeding unlocked", zap.Error(err))
		} else if !ok {
			s.log.Debug("expire sweep already running elsewhere")
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(ctx, expireLockKey, token); err != nil {
					s.log.Warn("release expire lock", zap.Error(err))
				}
			}()
		}
	}

	expired, err := s.validationSvc.ExpireStale(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("expired stale validation requests", zap.Int("count", expired))
	}
	return nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, "expire_validations", s.cfg.JobTimeout, s.ExpireValidationsJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
