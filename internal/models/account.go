package models

import "time"

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// UsageRecord is the per-email usage and subscription state.
type UsageRecord struct {
	Email                 string
	DisplayName           string
	FreeUsageCount        int
	PremiumUsageCount     int
	Premium               bool
	SubscriptionExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (r UsageRecord) Tier() Tier {
	if r.Premium {
		return TierPremium
	}
	return TierFree
}
