package models

import "time"

// Request models
type IngestRequest struct {
	DeviceID  string    `json:"device_id" binding:"required"`
	VolumeML  int64     `json:"volume_ml" binding:"gte=0"`
	Timestamp time.Time `json:"timestamp" binding:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Response models
type StatusResponse struct {
	Status string `json:"status"`
}

type LoginResponse struct {
	Email        string `json:"email"`
	Organisation string `json:"organisation"`
	Role         string `json:"role"`
}

// ReadingPoint is the wire shape of a single reading in list responses.
type ReadingPoint struct {
	Timestamp time.Time `json:"timestamp"`
	VolumeML  int64     `json:"volume_ml"`
}

type SummaryResponse struct {
	TotalVolume int64 `json:"total_volume"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
