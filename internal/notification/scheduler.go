package notification

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic jobs on their own goroutine, independent of
// the delivery worker pool.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  *zap.Logger
}

// NewScheduler creates a scheduler accepting six-field cron expressions (with
// seconds). Overlapping runs of the same job are skipped.
func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	logger := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx: context.Background(),
		log: log,
	}
}

// Add registers fn under a six-field cron expression.
func (s *Scheduler) Add(name, expr string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(expr, func() {
		if err := fn(s.ctx); err != nil {
			s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, expr, err)
	}
	s.log.Info("job scheduled", zap.String("job", name), zap.String("expr", expr))
	return nil
}

// Start begins running jobs with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop prevents new runs and returns a context done when running jobs end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
