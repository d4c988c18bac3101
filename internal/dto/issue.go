package dto

import "time"

type IssueRequest struct {
	// ValiditySeconds is optional; the service falls back to its default
	// window (7 days) when zero.
	ValiditySeconds int64 `json:"validitySeconds,omitempty"`
}

type IssueResponse struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}
