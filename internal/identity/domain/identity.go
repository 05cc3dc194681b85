package domain

import "strings"

// Identity is one authorized trial account from the static identity table.
type Identity struct {
	Email        string
	DisplayName  string
	PasswordHash string
}

// Profile is the public part of an Identity persisted as the current user.
type Profile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Profile returns the identity without its password hash.
func (i *Identity) Profile() Profile {
	return Profile{Email: i.Email, Name: i.DisplayName}
}

// NormalizeEmail trims and lowercases an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
