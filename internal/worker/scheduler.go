package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs periodic safety flushes on a cron expression with
// second-level precision ("s m h dom mon dow" or descriptors like "@every 5m").
type Scheduler struct {
	cron   *cron.Cron
	logger *zerolog.Logger
}

func NewScheduler(logger *zerolog.Logger) *Scheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: logger,
	}
}

// AddFlush registers a flush of queue on schedule. A run is skipped while the
// previous one is still going.
func (s *Scheduler) AddFlush(ctx context.Context, schedule string, queue Flusher) error {
	var job cron.Job = cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		result, err := queue.Flush(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("scheduled flush failed")
			return
		}
		if result.Attempted > 0 {
			s.logger.Info().Int("synced", result.Synced).Int("remaining", result.Remaining).Msg("scheduled flush finished")
		}
	})
	job = cron.SkipIfStillRunning(cronLogger{logger: s.logger})(job)

	if _, err := s.cron.AddJob(schedule, job); err != nil {
		return fmt.Errorf("invalid flush schedule %q: %w", schedule, err)
	}
	s.logger.Info().Str("schedule", schedule).Msg("registered scheduled flush")
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
