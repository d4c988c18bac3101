package domain

import "errors"

var (
	ErrKeyNotFound      = errors.New("license key not found")
	ErrKeyExpired       = errors.New("license key expired")
	ErrHardwareMismatch = errors.New("hardware id mismatch")
)
