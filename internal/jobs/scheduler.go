package jobs

import (
	"context"
	"fmt"
	"time"

	"pcapi/internal/logger"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron specs. A job still running when its next tick
// comes is skipped, and a panicking job does not stop the others.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(log *logger.Logger, timeout time.Duration) *Scheduler {
	cl := cronLogger{log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		logger:  log,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name. An empty spec leaves the job disabled.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		s.logger.LogJob(name, "disabled")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() { s.Run(name, job) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.logger.LogJob(name, fmt.Sprintf("scheduled at %q", spec))
	return nil
}

// Run executes job once with the scheduler's timeout.
func (s *Scheduler) Run(name string, job Job) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("JOB", fmt.Sprintf("[%s] failed after %s: %v", name, time.Since(start), err))
		return
	}
	s.logger.LogJob(name, fmt.Sprintf("done in %s", time.Since(start)))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("CRON", fmt.Sprint(append([]interface{}{msg, " "}, keysAndValues...)...))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("CRON", fmt.Sprintf("%s: %v %v", msg, err, keysAndValues))
}
