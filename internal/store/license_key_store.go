package store

import (
	"context"
	"errors"

	"palcro/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LicenseKeyStore struct{ db *gorm.DB }

// Create inserts an unbound key. The unique index on secret is the real
// guard against concurrent issuance of the same secret; relies on gorm's
// TranslateError to surface the constraint as ErrDuplicateSecret on both
// postgres and sqlite.
func (ls *LicenseKeyStore) Create(ctx context.Context, key *domain.LicenseKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if err := ls.db.WithContext(ctx).Create(key).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSecret
		}
		return err
	}
	return nil
}

// GetBySecret excludes revoked rows via the soft-delete scope, so a revoked
// key reads the same as one that never existed.
func (ls *LicenseKeyStore) GetBySecret(ctx context.Context, secret string) (*domain.LicenseKey, error) {
	var key domain.LicenseKey
	if err := ls.db.WithContext(ctx).First(&key, "secret = ?", secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &key, nil
}

// BindHardware atomically claims an unbound key for hwid. The single UPDATE
// guarded by hardware_id IS NULL is the only serialization point for
// concurrent first uses; zero rows affected means another caller won (or
// the key is gone), never that the write half-applied.
func (ls *LicenseKeyStore) BindHardware(ctx context.Context, secret, hwid string) error {
	tx := ls.db.WithContext(ctx).
		Model(&domain.LicenseKey{}).
		Where("secret = ? AND hardware_id IS NULL", secret).
		Update("hardware_id", hwid)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		var n int64
		if err := ls.db.WithContext(ctx).
			Model(&domain.LicenseKey{}).
			Where("secret = ?", secret).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrRecordNotFound
		}
		return ErrAlreadyBound
	}
	return nil
}

// Revoke soft-deletes the row. The record stays in the table (so the secret
// can never be reissued) but drops out of every read path.
func (ls *LicenseKeyStore) Revoke(ctx context.Context, secret string) error {
	tx := ls.db.WithContext(ctx).
		Where("secret = ?", secret).
		Delete(&domain.LicenseKey{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
