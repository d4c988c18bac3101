package dto

type ValidateRequest struct {
	Key        string `json:"key"`
	HardwareID string `json:"hwid"`
}

type ValidateResponse struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
	Script  string `json:"script,omitempty"`
}

// Denial reasons surfaced to clients. Revoked keys are reported as
// not_found on purpose: absence and revocation must be indistinguishable so
// responses don't leak which secrets ever existed.
const (
	ReasonNotFound         = "not_found"
	ReasonExpired          = "expired"
	ReasonHardwareMismatch = "hardware_mismatch"
)
