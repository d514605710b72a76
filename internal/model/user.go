// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents a registered account.
//
// Users authenticate with email + password (bcrypt hash stored in
// PasswordHash, never serialized to JSON — note the `json:"-"` tag).
//
// WHY Credits int (not a separate table)?
// The balance is a single integer per user, decremented by one on every
// successful remix and topped up by the payment webhook. Keeping it as a
// column on the user row matches how the rest of the app reads it: one
// SELECT when rendering the header, one read-then-write at deduction time.
//
// CPF is the Brazilian taxpayer ID required by the PIX payment provider.
// It is optional — stored only when the user ticks "save CPF" at checkout.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose the hash
	Credits      int       `json:"credits"`
	CPF          string    `json:"-"` // payment document, not public profile data
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
