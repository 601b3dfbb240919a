package dto

import "time"

type DeviceRequest struct {
	IP string `json:"ip"`
	UA string `json:"ua"`
}

type DeviceResponse struct {
	DeviceID   string    `json:"deviceId"`
	Active     bool      `json:"active"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}
