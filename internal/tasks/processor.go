package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/jobs"
	"github.com/akshitverma317/diagnoai/internal/models"
	"github.com/akshitverma317/diagnoai/internal/repository"
)

type AccountSweeper interface {
	DemoteLapsed(ctx context.Context, now time.Time, premiumLimit int) (int64, error)
}

type StudyStore interface {
	ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Study, error)
	Delete(ctx context.Context, id string) error
}

type ObjectRemover interface {
	RemoveStudy(ctx context.Context, bucket, key string) error
}

type Options struct {
	PremiumLimit int
	StudyTTL     time.Duration
	BatchSize    int
}

type Processor struct {
	accounts AccountSweeper
	studies  StudyStore
	objects  ObjectRemover
	opts     Options
	now      func() time.Time
	logger   zerolog.Logger
}

type TaskPayload struct {
	Type        string `json:"type"`
	ScheduledAt string `json:"scheduledAt"`
}

func NewProcessor(accounts AccountSweeper, studies StudyStore, objects ObjectRemover, opts Options, logger zerolog.Logger) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	return &Processor{
		accounts: accounts,
		studies:  studies,
		objects:  objects,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case jobs.TaskSubscriptionSweep:
		return p.handleSweep(ctx)
	case jobs.TaskRetentionCleanup:
		return p.handleCleanup(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleSweep(ctx context.Context) error {
	demoted, err := p.accounts.DemoteLapsed(ctx, p.now(), p.opts.PremiumLimit)
	if err != nil {
		return fmt.Errorf("demote lapsed subscriptions: %w", err)
	}
	p.logger.Info().Int64("demoted", demoted).Msg("subscription sweep finished")
	return nil
}

// handleCleanup removes archived studies older than the retention window, one batch
// at a time, until a batch comes back short or nothing in it could be removed.
func (p *Processor) handleCleanup(ctx context.Context) error {
	if p.opts.StudyTTL <= 0 {
		return nil
	}
	cutoff := p.now().Add(-p.opts.StudyTTL)

	var removed, failed int
	for {
		batch, err := p.studies.ListCreatedBefore(ctx, cutoff, p.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("list expired studies: %w", err)
		}

		progress := 0
		for _, study := range batch {
			if err := p.removeStudy(ctx, study); err != nil {
				failed++
				p.logger.Error().Err(err).Str("study_id", study.ID).Msg("remove study failed")
				continue
			}
			progress++
		}
		removed += progress

		if len(batch) < p.opts.BatchSize || progress == 0 {
			break
		}
	}

	p.logger.Info().
		Int("removed", removed).
		Int("failed", failed).
		Time("cutoff", cutoff).
		Msg("retention cleanup finished")
	return nil
}

func (p *Processor) removeStudy(ctx context.Context, study models.Study) error {
	if err := p.objects.RemoveStudy(ctx, study.Bucket, study.ObjectKey); err != nil {
		return err
	}
	if err := p.studies.Delete(ctx, study.ID); err != nil && !errors.Is(err, repository.ErrStudyNotFound) {
		return err
	}
	return nil
}
