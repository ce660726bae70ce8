// Package quota enforces the free and premium usage limits of each identity.
//
// Premium expiry is evaluated lazily: every check first demotes a premium
// record whose subscription lapsed or whose premium allowance is used up, and
// persists that demotion before the free-tier limit is applied.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/models"
	"github.com/akshitverma317/diagnoai/internal/repository"
)

const (
	DefaultFreeLimit    = 6
	DefaultPremiumLimit = 20
)

var (
	ErrQuotaExceeded = errors.New("usage limit reached")
	ErrPersistence   = errors.New("usage store unavailable")
)

type Limits struct {
	Free    int
	Premium int
}

// Store persists usage records. Update must run fn and write its result
// atomically per email; if fn returns an error nothing is written.
type Store interface {
	Get(ctx context.Context, email string) (models.UsageRecord, error)
	Update(ctx context.Context, email string, fn func(*models.UsageRecord) error) (models.UsageRecord, error)
	EnsureExists(ctx context.Context, record models.UsageRecord) (models.UsageRecord, error)
}

type Status struct {
	Tier      models.Tier `json:"tier"`
	Used      int         `json:"used"`
	Limit     int         `json:"limit"`
	Remaining int         `json:"remaining"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
}

type Controller struct {
	store   Store
	limits  Limits
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

func NewController(store Store, limits Limits, timeout time.Duration, logger zerolog.Logger) *Controller {
	if limits.Free <= 0 {
		limits.Free = DefaultFreeLimit
	}
	if limits.Premium <= 0 {
		limits.Premium = DefaultPremiumLimit
	}
	return &Controller{
		store:   store,
		limits:  limits,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the controller's time source.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

func (c *Controller) Limits() Limits {
	return c.limits
}

// CheckAllowed reports whether email may run one more classification.
func (c *Controller) CheckAllowed(ctx context.Context, email string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	record, err := c.store.Get(ctx, email)
	if err != nil {
		return false, c.storeErr("get usage", err)
	}

	if c.lapsed(record, c.now()) {
		record, err = c.store.Update(ctx, email, func(r *models.UsageRecord) error {
			c.demote(r, c.now())
			return nil
		})
		if err != nil {
			return false, c.storeErr("demote subscription", err)
		}
		c.logger.Info().Str("email", email).Msg("premium subscription lapsed")
	}

	return c.allowed(record), nil
}

// RecordUsage charges one classification to email. The limit is re-checked
// under the store's per-email lock, so racing requests cannot overspend.
func (c *Controller) RecordUsage(ctx context.Context, email string) (models.UsageRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	record, err := c.store.Update(ctx, email, func(r *models.UsageRecord) error {
		c.demote(r, c.now())
		if !c.allowed(*r) {
			return ErrQuotaExceeded
		}
		if r.Premium {
			r.PremiumUsageCount++
		} else {
			r.FreeUsageCount++
		}
		return nil
	})
	if err != nil {
		return models.UsageRecord{}, c.storeErr("record usage", err)
	}
	return record, nil
}

func (c *Controller) Status(ctx context.Context, email string) (Status, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	record, err := c.store.Get(ctx, email)
	if err != nil {
		return Status{}, c.storeErr("get usage", err)
	}
	c.demote(&record, c.now())
	return c.StatusOf(record), nil
}

// StatusOf summarises record without consulting the store.
func (c *Controller) StatusOf(record models.UsageRecord) Status {
	status := Status{Tier: record.Tier()}
	if record.Premium {
		status.Used = record.PremiumUsageCount
		status.Limit = c.limits.Premium
		status.ExpiresAt = record.SubscriptionExpiresAt
	} else {
		status.Used = record.FreeUsageCount
		status.Limit = c.limits.Free
	}
	status.Remaining = max(status.Limit-status.Used, 0)
	return status
}

func (c *Controller) EnsureIdentity(ctx context.Context, email, displayName string) (models.UsageRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	record, err := c.store.EnsureExists(ctx, models.UsageRecord{Email: email, DisplayName: displayName})
	if err != nil {
		return models.UsageRecord{}, c.storeErr("ensure identity", err)
	}
	return record, nil
}

// Subscribe activates premium for email until expiresAt and resets the premium allowance.
func (c *Controller) Subscribe(ctx context.Context, email string, expiresAt time.Time) (models.UsageRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	expiresAt = expiresAt.UTC()
	record, err := c.store.Update(ctx, email, func(r *models.UsageRecord) error {
		r.Premium = true
		r.SubscriptionExpiresAt = &expiresAt
		r.PremiumUsageCount = 0
		return nil
	})
	if err != nil {
		return models.UsageRecord{}, c.storeErr("subscribe", err)
	}
	c.logger.Info().Str("email", email).Time("expires_at", expiresAt).Msg("premium subscription activated")
	return record, nil
}

func (c *Controller) lapsed(r models.UsageRecord, now time.Time) bool {
	if !r.Premium {
		return false
	}
	if r.SubscriptionExpiresAt != nil && now.After(*r.SubscriptionExpiresAt) {
		return true
	}
	return r.PremiumUsageCount >= c.limits.Premium
}

func (c *Controller) demote(r *models.UsageRecord, now time.Time) {
	if c.lapsed(*r, now) {
		r.Premium = false
		r.SubscriptionExpiresAt = nil
	}
}

func (c *Controller) allowed(r models.UsageRecord) bool {
	if r.Premium {
		return r.PremiumUsageCount < c.limits.Premium
	}
	return r.FreeUsageCount < c.limits.Free
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Controller) storeErr(op string, err error) error {
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, repository.ErrAccountNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
