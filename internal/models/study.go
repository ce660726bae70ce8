package models

import "time"

// Study is an archived, charged diagnosis.
type Study struct {
	ID                  string
	Email               string
	Bucket              string
	ObjectKey           string
	Format              string
	SizeBytes           int64
	Checksum            []byte
	Signature           []byte
	ClassName           string
	Confidence          float64
	SecondaryClass      *string
	SecondaryConfidence *float64
	Specialist          bool
	Tier                Tier
	CreatedAt           time.Time
}
