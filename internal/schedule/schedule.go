package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is one scheduled invocation. ctx is cancelled when the scheduler stops.
type Task func(ctx context.Context)

type Scheduler struct {
	cron   *cron.Cron
	specs  []string
	loc    *time.Location
	logger *zap.SugaredLogger
}

// cronLogger feeds robfig/cron's logging into zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// New registers task under every cron spec, evaluated in loc. All specs share
// one job, so a firing is skipped while any earlier one is still running.
func New(ctx context.Context, specs []string, loc *time.Location, logger *zap.SugaredLogger, task Task) (*Scheduler, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no schedule configured")
	}
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
	)
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { task(ctx) }))
	for _, spec := range specs {
		if _, err := c.AddJob(spec, job); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
	}
	return &Scheduler{cron: c, specs: specs, loc: loc, logger: logger}, nil
}

// Run blocks until ctx is done, then waits for a running task to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Infow("Scheduler started",
		"schedule", s.specs,
		"time_zone", s.loc.String(),
		"next", s.Next(time.Now()).Format(time.RFC3339),
	)
	<-ctx.Done()
	s.logger.Infow("Scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// Next is the earliest fire time after t across all specs.
func (s *Scheduler) Next(t time.Time) time.Time {
	var next time.Time
	for _, entry := range s.cron.Entries() {
		n := entry.Schedule.Next(t.In(s.loc))
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}
