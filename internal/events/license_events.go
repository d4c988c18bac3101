package events

import "time"

type KeyIssued struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
	At        time.Time `json:"at"`
}

type KeyBound struct {
	Key        string    `json:"key"`
	HardwareID string    `json:"hardwareId"`
	At         time.Time `json:"at"`
}
