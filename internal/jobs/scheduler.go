package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/config"
)

const (
	TaskSubscriptionSweep = "subscription_sweep"
	TaskRetentionCleanup  = "retention_cleanup"
)

// Enqueuer appends a task to the job stream.
type Enqueuer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type Scheduler struct {
	cron   *cron.Cron
	queue  Enqueuer
	stream string
	cfg    config.JobsConfig
	log    zerolog.Logger
}

func NewScheduler(queue Enqueuer, stream string, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		queue:  queue,
		stream: stream,
		cfg:    cfg,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if s.cfg.SweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.enqueueSweep); err != nil {
			return err
		}
	}
	if s.cfg.CleanupSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.CleanupSchedule, s.enqueueCleanup); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits up to timeout for a running enqueue to finish.
func (s *Scheduler) Stop(timeout time.Duration) {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(timeout):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueSweep() {
	if err := s.enqueueTask(TaskSubscriptionSweep); err != nil {
		s.log.Error().Err(err).Msg("enqueue subscription sweep failed")
	}
}

func (s *Scheduler) enqueueCleanup() {
	if err := s.enqueueTask(TaskRetentionCleanup); err != nil {
		s.log.Error().Err(err).Msg("enqueue retention cleanup failed")
	}
}

func (s *Scheduler) enqueueTask(taskType string) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.XAdd(context.Background(), &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"type":        taskType,
			"scheduledAt": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	return err
}
