package main

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

const (
	defaultPollMs = 5000
	maxIdleWait   = 2 * time.Minute
	jitterWindow  = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type sweepRunner interface {
	Sweep(ctx context.Context) (bool, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ServiceParams configure the event worker loop.
type ServiceParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	Sweeper sweepRunner
	DB      pinger
	Lock    lease
}

// Service polls the queue and runs sweeps until its context is canceled.
type Service struct {
	logg         *logger.Logger
	sweeper      sweepRunner
	db           pinger
	lock         lease
	pollInterval time.Duration
}

// NewService validates the params and builds the worker loop.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Sweeper == nil {
		return nil, errors.New("sweeper is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock is required")
	}

	pollMs := params.Config.Queue.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}

	return &Service{
		logg:         params.Logger,
		sweeper:      params.Sweeper,
		db:           params.DB,
		lock:         params.Lock,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls until the context is canceled. A busy queue is drained without
// waiting; sweep errors back the loop off exponentially up to a ceiling.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return err
	}

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "event worker context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.sweepLocked(ctx)
		if err != nil {
			s.logg.Error(ctx, "sweep failed", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxIdleWait)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = s.pollInterval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// sweepLocked runs one sweep under the Redis lease. A held lease means
// another instance is sweeping, so this pass reports an idle queue.
func (s *Service) sweepLocked(ctx context.Context) (bool, error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		s.logg.Info(ctx, "another instance holds the sweep lease; skipping")
		return false, nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release sweep lease", relErr)
		}
	}()
	return s.sweeper.Sweep(ctx)
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
