// Package auth provides authentication for the back-office API.
package auth

import (
	"time"

	"marmora/internal/core/id"
)

// User is a back-office operator account.
type User struct {
	ID           id.ID     `db:"user_id" json:"userId"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"fullName"`
	Roles        []string  `db:"-" json:"roles"`
	IsAdmin      bool      `db:"is_admin" json:"isAdmin"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// NewUser creates a user with a fresh id.
func NewUser(email, passwordHash string) *User {
	now := time.Now()
	return &User{
		ID:           id.New(),
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Credentials is a login request.
type Credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
