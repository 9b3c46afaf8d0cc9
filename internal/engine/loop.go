package engine

import (
	"context"
	"errors"
	"log"
	"time"
)

// Scheduler drives the engine tick on a fixed cadence. Start blocks
// until the context is cancelled; an in-flight tick always finishes.
type Scheduler struct {
	engine   *Service
	interval time.Duration
	logger   *log.Logger
}

// NewScheduler constructs a scheduler for the engine.
func NewScheduler(engine *Service, interval time.Duration, logger *log.Logger) (*Scheduler, error) {
	if engine == nil {
		return nil, errors.New("scheduler: nil engine")
	}
	if interval <= 0 {
		return nil, errors.New("scheduler: non-positive interval")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{engine: engine, interval: interval, logger: logger}, nil
}

// Start runs the tick loop until ctx is cancelled. The first tick
// fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Printf("scheduler: started, interval %s", s.interval)
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("scheduler: stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.engine.Tick(ctx, s.engine.clock.Now()); err != nil {
		s.logger.Printf("scheduler: tick failed: %v", err)
	}
}
