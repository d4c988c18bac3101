package dto

type RevokeRequest struct {
	Key string `json:"key"`
}

type RevokeResponse struct {
	Success bool `json:"success"`
}
