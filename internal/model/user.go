// Package model defines the data structures used throughout the application.
package model

import "time"

// Preferences are per-user UI defaults. They are only ever replaced field by
// field, never cleared.
type Preferences struct {
	Theme            string `json:"theme"`
	DefaultLanguage  string `json:"defaultLanguage"`
	DefaultFramework string `json:"defaultFramework"`
}

// DefaultPreferences returns the preferences a new account starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:            "dark",
		DefaultLanguage:  "javascript",
		DefaultFramework: "react",
	}
}

// User represents a registered account.
//
// Email is the login identifier and is unique across the store; the match is
// exact (no case folding). PasswordHash holds a bcrypt hash and is never
// serialised. Accounts created through GitHub sign-in carry a GitHubID and an
// empty PasswordHash, so password login always fails for them.
type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	GitHubID     int64       `json:"githubId,omitempty"`
	IsActive     bool        `json:"isActive"`
	Preferences  Preferences `json:"preferences"`
	LastLogin    *time.Time  `json:"lastLogin,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// UserProfile is the public projection of a User returned by the auth
// endpoints and attached to authenticated requests.
type UserProfile struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Preferences: u.Preferences,
		CreatedAt:   u.CreatedAt,
	}
}
