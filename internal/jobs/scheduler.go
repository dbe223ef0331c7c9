package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"quorum/internal/logging"
)

type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// Timeout bounds a single RunAll pass.
	Timeout time.Duration
}

func NewScheduler(runner *Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
		Timeout: 30 * time.Minute,
	}
}

// Register schedules RunAll on a standard cron spec or "@every <duration>".
func (s *Scheduler) Register(spec string) error {
	_, err := s.cron.AddFunc(spec, s.runOnce)
	return err
}

func (s *Scheduler) Start(runOnStart bool) {
	s.cron.Start()
	if runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runOnce()
		}()
	}
}

// Stop halts scheduling and cancels running passes; the returned context is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()
	s.cancel()
	ctx, done := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		done()
	}()
	return ctx
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, s.Timeout)
	defer cancel()
	started := time.Now()
	summary, err := s.runner.RunAll(ctx)
	if err != nil {
		s.log.Error("saved search pass finished with errors", "error", err,
			"users", summary.Users, "failed", summary.Failed)
		return
	}
	s.log.Info("saved search pass finished",
		"users", summary.Users,
		"notified", summary.Notified,
		"skipped", summary.Skipped,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}
