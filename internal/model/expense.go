// Package model defines domain entities for the application.
package model

import (
	"errors"
	"math/big"
	"strings"
	"time"
)

// Entity invariant violations.
var (
	ErrInvalidAmount    = errors.New("amount must be at least one cent")
	ErrEmptyDescription = errors.New("description must not be empty")
	ErrEmptyCategory    = errors.New("category must not be empty")
	ErrZeroDate         = errors.New("date must be set")
)

// Expense represents a single recorded expenditure.
// AmountCents is the canonical amount; no floating-point currency value
// is ever stored on the entity or persisted.
type Expense struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Date        time.Time `json:"date"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
}

// NewExpense constructs an expense for the given owner, failing on any
// invariant violation. The returned entity has an unset ID; the repository
// assigns one on first save.
func NewExpense(userID string, date time.Time, category string, amountCents int64, description string) (*Expense, error) {
	e := &Expense{
		UserID:      userID,
		Date:        DateOnly(date),
		Category:    category,
		AmountCents: amountCents,
		Description: description,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the entity invariants. The future-date rule is a request-time
// concept and lives in the service layer, not here.
func (e *Expense) Validate() error {
	if e.AmountCents < 1 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// DateOnly truncates a timestamp to its UTC calendar date. Expenses carry
// day granularity; stored precision beyond that must never affect matching.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthlySummary aggregates a user's expenditure for one calendar month.
// Categories with no matching expenses are omitted from both maps.
type MonthlySummary struct {
	Year             int
	Month            int
	TotalCents       int64
	CategoryTotals   map[string]int64
	CategoryAverages map[string]*big.Rat
}
