// Package jobs runs periodic background tasks with cron.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"telegram-points-bot/internal/config"
)

// jobTimeout bounds each run.
const jobTimeout = 10 * time.Second

// Pinger is a store health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Pruner drops expired bookkeeping.
type Pruner interface {
	Prune(ctx context.Context) error
}

// Scheduler runs the store health check and rate limiter pruning.
type Scheduler struct {
	cron    *cron.Cron
	cfg     config.JobsConfig
	store   Pinger
	limiter Pruner

	// healthy reflects the last health check.
	healthy atomic.Bool
}

// NewScheduler creates a scheduler in UTC. limiter may be nil.
func NewScheduler(cfg config.JobsConfig, store Pinger, limiter Pruner) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		cfg:     cfg,
		store:   store,
		limiter: limiter,
	}
	s.healthy.Store(true)
	return s
}

// Start registers the jobs and starts the cron runner.
// An empty spec disables that job.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.HealthCheck != "" {
		if _, err := s.cron.AddFunc(s.cfg.HealthCheck, func() { s.CheckHealth(ctx) }); err != nil {
			return fmt.Errorf("invalid jobs.health_check spec %q: %w", s.cfg.HealthCheck, err)
		}
	}

	if s.cfg.LimiterPrune != "" && s.limiter != nil {
		if _, err := s.cron.AddFunc(s.cfg.LimiterPrune, func() { s.PruneLimiter(ctx) }); err != nil {
			return fmt.Errorf("invalid jobs.limiter_prune spec %q: %w", s.cfg.LimiterPrune, err)
		}
	}

	s.cron.Start()
	log.Info().
		Str("health_check", s.cfg.HealthCheck).
		Str("limiter_prune", s.cfg.LimiterPrune).
		Msg("Job scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Job scheduler stopped")
}

// CheckHealth pings the store and logs state transitions.
func (s *Scheduler) CheckHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	err := s.store.Ping(ctx)
	if err != nil {
		if s.healthy.Swap(false) {
			log.Error().Err(err).Msg("Store health check failed")
		} else {
			log.Debug().Err(err).Msg("Store still unhealthy")
		}
		return
	}

	if !s.healthy.Swap(true) {
		log.Info().Msg("Store recovered")
	}
}

// Healthy reports the result of the last health check.
func (s *Scheduler) Healthy() bool {
	return s.healthy.Load()
}

// PruneLimiter drops idle rate limiter entries.
func (s *Scheduler) PruneLimiter(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := s.limiter.Prune(ctx); err != nil {
		log.Warn().Err(err).Msg("Rate limiter prune failed")
		return
	}
	log.Debug().Msg("Rate limiter pruned")
}
