// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents a marketplace account.
//
// Identity is delegated to an external provider (GitHub OAuth or Firebase ID
// tokens), so ID is the provider's stable subject (e.g. "github:1234567").
// The record is upserted from the provider's claims on every authenticated
// request, which keeps names and avatars in sync without a profile editor.
//
// WHY *string FOR THE PROFILE FIELDS?
// Every profile claim is optional. A nil pointer serialises as JSON null and
// maps to SQL NULL, which matters for email: the UNIQUE constraint ignores
// NULLs, so many users without a public email can coexist.
type User struct {
	ID              string    `json:"id"`
	Email           *string   `json:"email"`
	FirstName       *string   `json:"firstName"`
	LastName        *string   `json:"lastName"`
	ProfileImageURL *string   `json:"profileImageUrl"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Identity is the authenticated principal handed to us by an identity provider.
// Empty strings mean "claim not supplied".
type Identity struct {
	Subject         string `json:"sub"`
	Email           string `json:"email,omitempty"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// User converts provider claims into the record we upsert.
func (i Identity) User() *User {
	return &User{
		ID:              i.Subject,
		Email:           optional(i.Email),
		FirstName:       optional(i.FirstName),
		LastName:        optional(i.LastName),
		ProfileImageURL: optional(i.ProfileImageURL),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Session is a store-backed login session. The browser only holds a signed
// token naming the session; the claims snapshot lives server-side.
type Session struct {
	ID        string
	UserID    string
	Identity  Identity
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
