package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"palcro/internal/domain"
	"palcro/internal/dto"
	"palcro/internal/events"
	"palcro/internal/notify"
	"palcro/internal/service"
	"palcro/internal/store"

	"github.com/google/uuid"
)

const (
	// 16 random bytes, hex encoded. Matches the width the uniqueness
	// guarantee is sized for; do not shrink.
	secretBytes = 16

	maxGenerateAttempts = 5

	// DefaultValidity applies when neither the request nor the deployment
	// configures a window.
	DefaultValidity = 7 * 24 * time.Hour
)

type LicenseServiceImpl struct {
	Store    keyStore
	Notifier notify.Notifier
	// Validity is the issuance window used when a request doesn't ask for
	// one; zero means DefaultValidity.
	Validity time.Duration
	// Script is handed back verbatim on every granted validation.
	Script string
}

func NewLicenseServiceImpl(st *store.Store, notifier notify.Notifier, validity time.Duration, script string) *LicenseServiceImpl {
	return &LicenseServiceImpl{
		Store:    gormKeyStore{store: st},
		Notifier: notifier,
		Validity: validity,
		Script:   script,
	}
}

// keyStore is the narrow slice of the repository this service needs. The
// gorm store satisfies it through the adapter below; tests plug in a memory
// implementation.
type keyStore interface {
	Create(ctx context.Context, key *domain.LicenseKey) error
	GetBySecret(ctx context.Context, secret string) (*domain.LicenseKey, error)
	BindHardware(ctx context.Context, secret, hwid string) error
	Revoke(ctx context.Context, secret string) error
}

type gormKeyStore struct {
	store *store.Store
}

func (g gormKeyStore) Create(ctx context.Context, key *domain.LicenseKey) error {
	return g.store.Keys().Create(ctx, key)
}

func (g gormKeyStore) GetBySecret(ctx context.Context, secret string) (*domain.LicenseKey, error) {
	return g.store.Keys().GetBySecret(ctx, secret)
}

func (g gormKeyStore) BindHardware(ctx context.Context, secret, hwid string) error {
	return g.store.Keys().BindHardware(ctx, secret, hwid)
}

func (g gormKeyStore) Revoke(ctx context.Context, secret string) error {
	return g.store.Keys().Revoke(ctx, secret)
}

func (s *LicenseServiceImpl) Issue(ctx context.Context, r dto.IssueRequest) (*dto.IssueResponse, error) {
	if r.ValiditySeconds < 0 {
		return nil, fmt.Errorf("%w: negative validity", service.ErrInvalidRequest)
	}
	validity := s.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	if r.ValiditySeconds > 0 {
		validity = time.Duration(r.ValiditySeconds) * time.Second
	}

	now := time.Now().UTC()
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		secret, err := generateSecret()
		if err != nil {
			return nil, err
		}

		key := &domain.LicenseKey{
			ID:        uuid.New(),
			Secret:    secret,
			ExpiresAt: now.Add(validity),
		}
		err = s.Store.Create(ctx, key)
		if errors.Is(err, store.ErrDuplicateSecret) {
			// Collisions are effectively impossible at this width; a retry
			// costs nothing and keeps issuance correct even if they happen.
			slog.Warn("generated secret collided, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.Notifier.KeyIssued(events.KeyIssued{Key: secret, ExpiresAt: key.ExpiresAt, At: now})
		slog.Info("license key issued", "key_id", key.ID, "expires_at", key.ExpiresAt)
		return &dto.IssueResponse{Key: secret, ExpiresAt: key.ExpiresAt}, nil
	}
	return nil, service.ErrIssueRetriesExhausted
}

func (s *LicenseServiceImpl) Validate(ctx context.Context, r dto.ValidateRequest) (*dto.ValidateResponse, error) {
	if r.Key == "" || r.HardwareID == "" {
		return nil, fmt.Errorf("%w: missing key or hwid", service.ErrInvalidRequest)
	}

	key, err := s.Store.GetBySecret(ctx, r.Key)
	if errors.Is(err, store.ErrRecordNotFound) {
		return deny(dto.ReasonNotFound), nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if key.Expired(now) {
		return deny(dto.ReasonExpired), nil
	}

	if !key.Bound() {
		err := s.Store.BindHardware(ctx, r.Key, r.HardwareID)
		switch {
		case err == nil:
			s.Notifier.KeyBound(events.KeyBound{Key: r.Key, HardwareID: r.HardwareID, At: now})
			slog.Info("license key bound", "key_id", key.ID, "hardware_id", r.HardwareID)
			return s.grant(), nil
		case errors.Is(err, store.ErrAlreadyBound):
			// Lost the first-use race. Re-read and fall through to the
			// bound-key comparison against whichever hwid won.
			key, err = s.Store.GetBySecret(ctx, r.Key)
			if errors.Is(err, store.ErrRecordNotFound) {
				return deny(dto.ReasonNotFound), nil
			}
			if err != nil {
				return nil, err
			}
		case errors.Is(err, store.ErrRecordNotFound):
			return deny(dto.ReasonNotFound), nil
		default:
			return nil, err
		}
	}

	if key.BoundTo(r.HardwareID) {
		return s.grant(), nil
	}
	return deny(dto.ReasonHardwareMismatch), nil
}

func (s *LicenseServiceImpl) Revoke(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: missing key", service.ErrInvalidRequest)
	}
	err := s.Store.Revoke(ctx, key)
	if errors.Is(err, store.ErrRecordNotFound) {
		return domain.ErrKeyNotFound
	}
	if err != nil {
		return err
	}
	slog.Info("license key revoked", "key", key)
	return nil
}

func (s *LicenseServiceImpl) grant() *dto.ValidateResponse {
	return &dto.ValidateResponse{Granted: true, Script: s.Script}
}

func deny(reason string) *dto.ValidateResponse {
	return &dto.ValidateResponse{Granted: false, Reason: reason}
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
