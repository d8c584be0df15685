// Package schedule runs board jobs at wall-clock times in the board's
// civil timezone.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires named jobs on cron expressions (minute resolution).
// A job still running when its next activation arrives is skipped.
type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron
}

// New creates a scheduler evaluating expressions in loc. Jobs receive ctx.
func New(ctx context.Context, loc *time.Location) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		ctx: ctx,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Add registers job under spec
func (s *Scheduler) Add(name, spec string, job func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		if s.ctx.Err() != nil {
			return
		}
		start := time.Now()
		job(s.ctx)
		if elapsed := time.Since(start); elapsed > 10*time.Second {
			log.Printf("Schedule: %s took %v", name, elapsed)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	log.Printf("Schedule: %s at %q", name, spec)
	return nil
}

// Start begins firing jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new activations and waits for running jobs to finish or
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Println("Schedule: gave up waiting for running jobs")
	}
}

// Next returns the next activation time of spec in the scheduler's
// location, mainly for logging.
func (s *Scheduler) Next(spec string, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after.In(s.cron.Location())), nil
}
