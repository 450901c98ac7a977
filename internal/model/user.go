// Package model defines the data structures used throughout the application.
package model

import (
	"time"

	"github.com/sakif/pollar/internal/plan"
)

// User represents a registered account.
//
// Identity is the email address: a person who signs in with GitHub today and
// Google tomorrow lands on the same row as long as both report the same
// email. Each provider they used is recorded as a Provider row.
//
// PasswordHash is empty for OAuth-only accounts and never serialised.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatarUrl"`
	Plan         plan.Tier `json:"plan"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Provider records that a user has signed in through an external identity
// provider. At most one row exists per (UserID, Name).
type Provider struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is what an identity provider tells us about a person.
type Identity struct {
	Provider  string
	Email     string
	Name      string
	AvatarURL string
}
