package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pocketledger/pocketledger/internal/cache"
	"github.com/pocketledger/pocketledger/internal/model"
	"github.com/pocketledger/pocketledger/internal/repository"
)

// importDateLayout is the ISO calendar-date form expected at the boundary.
const importDateLayout = "2006-01-02"

// ExpenseService validates and orchestrates expense operations. It owns the
// business rules that are independent of storage mechanics, including the
// future-date rule and the configured closed set of category labels.
type ExpenseService struct {
	repo            *repository.Repository
	cache           *cache.Cache // nil disables summary invalidation
	categories      map[string]struct{}
	defaultPageSize int
	now             func() time.Time
}

// NewExpenseService creates a new ExpenseService. categories is the closed
// set of valid labels supplied by configuration.
func NewExpenseService(repo *repository.Repository, summaryCache *cache.Cache, categories []string, defaultPageSize int) *ExpenseService {
	set := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		set[category] = struct{}{}
	}
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	return &ExpenseService{
		repo:            repo,
		cache:           summaryCache,
		categories:      set,
		defaultPageSize: defaultPageSize,
		now:             time.Now,
	}
}

// Create validates the input, converts the decimal amount to integer cents
// and persists a new expense owned by user.
func (s *ExpenseService) Create(ctx context.Context, user *model.User, amount, description string, date time.Time, category string) (*model.Expense, error) {
	cents, err := s.validateInput(amount, description, date, category)
	if err != nil {
		return nil, err
	}

	expense, err := model.NewExpense(user.ID, date, category, cents, description)
	if err != nil {
		return nil, fmt.Errorf("construct expense: %w", err)
	}

	if err := s.repo.SaveExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("persist expense: %w", err)
	}

	s.invalidateSummary(ctx, user.ID, expense.Date)
	return expense, nil
}

// Update replaces all four mutable fields of an existing expense after the
// same validation as Create. The identifier and owner are preserved
// unchanged; ownership must already have been checked by the caller (see
// FindForUser).
func (s *ExpenseService) Update(ctx context.Context, expense *model.Expense, amount, description string, date time.Time, category string) (*model.Expense, error) {
	cents, err := s.validateInput(amount, description, date, category)
	if err != nil {
		return nil, err
	}

	previousDate := expense.Date

	updated := &model.Expense{
		ID:          expense.ID,
		UserID:      expense.UserID,
		Date:        model.DateOnly(date),
		Category:    category,
		AmountCents: cents,
		Description: description,
	}
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("construct expense: %w", err)
	}

	if err := s.repo.SaveExpense(ctx, updated); err != nil {
		return nil, fmt.Errorf("persist expense: %w", err)
	}

	// The expense may have moved between months; both windows are stale.
	s.invalidateSummary(ctx, updated.UserID, previousDate)
	s.invalidateSummary(ctx, updated.UserID, updated.Date)
	return updated, nil
}

// FindForUser fetches an expense and checks it belongs to user. An absent
// row yields ErrNotFound; a row owned by someone else yields ErrNotOwned.
// This is the authorization seam callers must pass through before Update.
func (s *ExpenseService) FindForUser(ctx context.Context, user *model.User, id string) (*model.Expense, error) {
	expense, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrExpenseNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if expense.UserID != user.ID {
		return nil, ErrNotOwned
	}
	return expense, nil
}

// Delete removes an expense after checking ownership.
func (s *ExpenseService) Delete(ctx context.Context, user *model.User, id string) error {
	expense, err := s.FindForUser(ctx, user, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.invalidateSummary(ctx, user.ID, expense.Date)
	return nil
}

// List returns one page of the user's expenses for the (year, month)
// window, newest first. page is 1-based.
func (s *ExpenseService) List(ctx context.Context, user *model.User, year, month, page, pageSize int) ([]*model.Expense, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}

	offset := (page - 1) * pageSize
	filter := repository.ExpenseFilter{UserID: user.ID, Year: year, Month: month}
	return s.repo.ListExpenses(ctx, filter, offset, pageSize)
}

// ListYears returns the years in which the user recorded expenses.
func (s *ExpenseService) ListYears(ctx context.Context, user *model.User) ([]int, error) {
	return s.repo.ListExpenditureYears(ctx, user.ID)
}

// CountExpenses returns the total matching rows for the window; callers
// derive page counts from it independently of pagination.
func (s *ExpenseService) CountExpenses(ctx context.Context, user *model.User, year, month int) (int64, error) {
	filter := repository.ExpenseFilter{UserID: user.ID, Year: year, Month: month}
	return s.repo.CountExpenses(ctx, filter)
}

// ImportFromCSV streams date,category,amount,description rows and persists
// them for user inside a single transaction. Every row is validated exactly
// as in Create; any malformed or invalid row rolls the whole import back,
// so either all rows commit or none do. Returns the number of rows
// committed.
func (s *ExpenseService) ImportFromCSV(ctx context.Context, user *model.User, r io.Reader) (int, error) {
	importID := uuid.New().String()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true

	imported := 0
	touched := make(map[[2]int]struct{})

	err := s.repo.InTx(ctx, func(txRepo *repository.Repository) error {
		for line := 1; ; line++ {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("row %d: %w", line, err)
			}

			expense, err := s.parseImportRow(user, record)
			if err != nil {
				return fmt.Errorf("row %d: %w", line, err)
			}

			if err := txRepo.SaveExpense(ctx, expense); err != nil {
				return fmt.Errorf("row %d: %w", line, err)
			}

			touched[[2]int{expense.Date.Year(), int(expense.Date.Month())}] = struct{}{}
			imported++
		}
	})
	if err != nil {
		slog.WarnContext(ctx, "csv import rolled back",
			"import_id", importID,
			"user_id", user.ID,
			"error", err)
		return 0, err
	}

	for window := range touched {
		s.invalidateSummaryWindow(ctx, user.ID, window[0], window[1])
	}

	slog.InfoContext(ctx, "csv import committed",
		"import_id", importID,
		"user_id", user.ID,
		"rows", imported)
	return imported, nil
}

// parseImportRow converts one CSV record into a validated expense.
func (s *ExpenseService) parseImportRow(user *model.User, record []string) (*model.Expense, error) {
	date, err := time.Parse(importDateLayout, strings.TrimSpace(record[0]))
	if err != nil {
		verr := newValidationError()
		verr.Add("date", "date must be in YYYY-MM-DD format")
		return nil, verr
	}

	category := strings.TrimSpace(record[1])
	amount := record[2]
	description := strings.TrimSpace(record[3])

	cents, err := s.validateInput(amount, description, date, category)
	if err != nil {
		return nil, err
	}

	return model.NewExpense(user.ID, date, category, cents, description)
}

// validateInput applies the Create/Update business rules and reports every
// violation at once, tagged by field.
func (s *ExpenseService) validateInput(amount, description string, date time.Time, category string) (int64, error) {
	verr := newValidationError()

	cents, err := model.ParseDecimalToCents(amount)
	if err != nil {
		verr.Add("amount", "amount must be a positive decimal number")
	}

	if strings.TrimSpace(description) == "" {
		verr.Add("description", "description must not be empty")
	}

	if strings.TrimSpace(category) == "" {
		verr.Add("category", "category must not be empty")
	} else if _, ok := s.categories[category]; !ok {
		verr.Add("category", "unknown category")
	}

	if date.IsZero() {
		verr.Add("date", "date must be set")
	} else if s.isFutureDate(date) {
		verr.Add("date", "date must not be in the future")
	}

	if len(verr.Fields) > 0 {
		return 0, verr
	}
	return cents, nil
}

// isFutureDate reports whether date falls strictly after today. Both sides
// are compared at calendar-day granularity, so date == today passes.
func (s *ExpenseService) isFutureDate(date time.Time) bool {
	today := model.DateOnly(s.now())
	return model.DateOnly(date).After(today)
}

// invalidateSummary drops the cached monthly summary covering date.
// Best effort: the cache is never authoritative, so failures only log.
func (s *ExpenseService) invalidateSummary(ctx context.Context, userID string, date time.Time) {
	s.invalidateSummaryWindow(ctx, userID, date.Year(), int(date.Month()))
}

func (s *ExpenseService) invalidateSummaryWindow(ctx context.Context, userID string, year, month int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSummary(ctx, userID, year, month); err != nil {
		slog.WarnContext(ctx, "summary cache invalidation failed",
			"user_id", userID,
			"year", year,
			"month", month,
			"error", err)
	}
}
