package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
)

type Option func(*options)

type options struct {
	seconds bool
	logger  cron.Logger
}

// withSeconds accepts six field specs with a leading seconds field.
func withSeconds() Option {
	return func(o *options) { o.seconds = true }
}

func WithLogger(logger cron.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Scheduler runs jobs on cron specs. A job still running when its next
// tick arrives is skipped, so runs never overlap. Jobs receive a context
// that is cancelled by Stop.
type Scheduler struct {
	cron   *cron.Cron
	logger cron.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts ...Option) *Scheduler {
	o := options{logger: cron.DiscardLogger}
	for _, opt := range opts {
		opt(&o)
	}

	cronOpts := []cron.Option{
		cron.WithLogger(o.logger),
		cron.WithChain(cron.Recover(o.logger), cron.SkipIfStillRunning(o.logger)),
	}
	if o.seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cronOpts...),
		logger: o.logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) AddJob(spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := job(s.ctx); err != nil {
			s.logger.Error(err, "job failed", "spec", spec)
		}
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}
