package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LicenseKey is one issued license. The secret is what clients present;
// HardwareID stays nil until the first successful validation claims it and
// is never rewritten afterwards. Revocation is a gorm soft delete so the
// unique index on secret keeps covering revoked rows and a dead secret can
// never be handed out again.
type LicenseKey struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Secret     string         `gorm:"type:text;not null;uniqueIndex:ux_license_keys_secret"`
	HardwareID *string        `gorm:"type:text"`
	ExpiresAt  time.Time      `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"not null;autoUpdateTime"`
	RevokedAt  gorm.DeletedAt `gorm:"index"`
}

func (LicenseKey) TableName() string { return "license_keys" }

// Expired is derived purely from the clock; it is never stored.
func (k *LicenseKey) Expired(now time.Time) bool { return now.After(k.ExpiresAt) }

func (k *LicenseKey) Bound() bool { return k.HardwareID != nil }

func (k *LicenseKey) BoundTo(hwid string) bool {
	return k.HardwareID != nil && *k.HardwareID == hwid
}
