package store

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateSecret is the storage-layer uniqueness constraint firing;
	// the service handles it by regenerating, it is not an outage.
	ErrDuplicateSecret = errors.New("secret already exists")
	// ErrAlreadyBound is the lost-race outcome of BindHardware, not a failure.
	ErrAlreadyBound = errors.New("hardware already bound")
)

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) Keys() *LicenseKeyStore { return &LicenseKeyStore{db: s.DB} }
