package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/config"
	"github.com/akshitverma317/diagnoai/internal/quota"
)

var ErrCheckoutUnavailable = errors.New("subscription checkout is not configured")

type SubscriptionService struct {
	quota *quota.Controller
	cfg   config.SubscriptionConfig
	now   func() time.Time
	log   zerolog.Logger
}

func NewSubscriptionService(quotas *quota.Controller, cfg config.SubscriptionConfig, log zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{
		quota: quotas,
		cfg:   cfg,
		now:   time.Now,
		log:   log,
	}
}

// CheckoutURL points the caller at the payment page, carrying the app id and the
// caller's own identity token so the payment callback can name the account.
func (s *SubscriptionService) CheckoutURL(token string) (string, error) {
	if s.cfg.PaymentURL == "" || s.cfg.AppID == "" {
		return "", ErrCheckoutUnavailable
	}
	base, err := url.Parse(s.cfg.PaymentURL)
	if err != nil {
		return "", fmt.Errorf("parse payment url: %w", err)
	}

	query := base.Query()
	query.Set("app_id", s.cfg.AppID)
	query.Set("token", token)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

type Confirmation struct {
	Email     string       `json:"email"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Usage     quota.Status `json:"usage"`
}

// Confirm activates premium for email for the configured subscription duration.
func (s *SubscriptionService) Confirm(ctx context.Context, email string) (Confirmation, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Confirmation{}, errors.New("email required")
	}

	expiresAt := s.now().Add(s.cfg.Duration).UTC()
	record, err := s.quota.Subscribe(ctx, email, expiresAt)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{
		Email:     record.Email,
		ExpiresAt: expiresAt,
		Usage:     s.quota.StatusOf(record),
	}, nil
}
