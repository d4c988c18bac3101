package service

import (
	"context"

	"palcro/internal/dto"
)

type LicenseService interface {
	// Issue generates and persists a fresh key. The caller's identity must
	// already be verified by the admin middleware; the service trusts it.
	Issue(ctx context.Context, r dto.IssueRequest) (*dto.IssueResponse, error)
	// Validate runs the binding state machine. Denials come back in the
	// response; a non-nil error means storage trouble, not a license decision.
	Validate(ctx context.Context, r dto.ValidateRequest) (*dto.ValidateResponse, error)
	Revoke(ctx context.Context, key string) error
}
