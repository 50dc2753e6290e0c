package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account on the marketplace. Every user can buy and sell.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Profile is the public face of a user within their neighborhood.
type Profile struct {
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	DisplayName  string     `db:"display_name" json:"display_name"`
	Bio          *string    `db:"bio" json:"bio,omitempty"`
	Neighborhood *string    `db:"neighborhood" json:"neighborhood,omitempty"`
	PhotoID      *uuid.UUID `db:"photo_id" json:"photo_id,omitempty"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Session stores an issued refresh token.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	UserAgent    *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
