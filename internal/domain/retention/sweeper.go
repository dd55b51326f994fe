package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Sweeper runs Pruner.PruneAll on a fixed interval.
type Sweeper struct {
	pruner    *Pruner
	interval  time.Duration
	timeout   time.Duration
	scheduler *gocron.Scheduler
	logger    zerolog.Logger
}

func NewSweeper(p *Pruner, interval time.Duration, logger zerolog.Logger) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	timeout := interval
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Sweeper{
		pruner:    p,
		interval:  interval,
		timeout:   timeout,
		scheduler: s,
		logger:    logger.With().Str("component", "retention-sweeper").Logger(),
	}
}

// Start schedules the sweep. The first pass runs one interval after start.
func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.interval)
	}
	if _, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.Sweep); err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info().Dur("interval", s.interval).Msg("retention sweep scheduled")
	return nil
}

// Stop halts the scheduler. It does not interrupt a sweep in progress.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// Sweep runs one pass, bounded by the sweep interval.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.pruner.PruneAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("retention sweep aborted")
		return
	}
	s.logger.Info().
		Int("users", res.Users).
		Int("deleted", res.Deleted).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("retention sweep finished")
}
