package auth

import "time"

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type SessionResponse struct {
	Fingerprint string    `json:"fingerprint"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
	IP          string    `json:"ip"`
	CreatedAt   time.Time `json:"created_at"`
	Current     bool      `json:"current"`
}
