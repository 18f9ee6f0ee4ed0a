// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// PasswordHash carries the bcrypt hash and is tagged `json:"-"` so that no
// response, log line, or envelope can ever serialise it by accident.
//
// GitHubID is zero for accounts created with email/password. Accounts that
// signed in through GitHub carry the provider's numeric ID; the column is
// UNIQUE when set, so one GitHub account maps to exactly one user.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ProfileImage string    `json:"profileImage"`
	GitHubID     int64     `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DefaultProfileImage returns the generated avatar assigned at registration.
func DefaultProfileImage(username string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + username
}
