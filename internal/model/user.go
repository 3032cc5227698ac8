// Package model defines domain entities for the application.
package model

import "time"

// User represents an account that owns expenses.
// Identity is immutable after creation except for PasswordHash.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
