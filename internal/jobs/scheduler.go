package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"templatedev/api/internal/tasks"
)

// Dispatcher runs or enqueues a task. The API binary passes either the
// in-process processor or the stream producer.
type Dispatcher interface {
	Dispatch(ctx context.Context, task tasks.Task) error
}

type Scheduler struct {
	cron       *cron.Cron
	dispatcher Dispatcher
	schedule   string
	now        func() time.Time
	log        zerolog.Logger
}

func NewScheduler(dispatcher Dispatcher, schedule string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:       c,
		dispatcher: dispatcher,
		schedule:   schedule,
		now:        time.Now,
		log:        log,
	}
}

func (s *Scheduler) Start() error {
	if s.dispatcher == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("refresh token sweep scheduled")
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		<-s.cron.Stop().Done()
		cancel()
	}()
	return func() {
		<-ctx.Done()
		cancel()
	}
}

func (s *Scheduler) enqueueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	task := tasks.NewTask(tasks.TypeSweepRefreshTokens, s.now())
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		s.log.Error().Err(err).Msg("dispatch sweep failed")
	}
}
