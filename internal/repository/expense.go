package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/pocketledger/pocketledger/internal/model"
)

// Common errors for expense repository operations.
var (
	ErrExpenseNotFound = errors.New("expense not found")
	ErrInvalidLimit    = errors.New("limit must be positive")
	ErrInvalidOffset   = errors.New("offset must not be negative")
)

// ExpenseFilter is the closed set of predicates recognized by query and
// aggregation operations. A zero Year or Month means "any". Year and Month
// match the calendar components of the stored date, never its string form,
// so precision beyond day granularity can never affect matching.
type ExpenseFilter struct {
	UserID string
	Year   int
	Month  int // 1-12
}

// where renders the filter as a parameterized WHERE clause. Only fixed,
// known predicates are ever emitted; caller input travels exclusively
// through placeholder arguments.
func (f ExpenseFilter) where() (string, []any) {
	clause := "WHERE TRUE"
	var args []any
	argIndex := 1

	if f.UserID != "" {
		clause += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, f.UserID)
		argIndex++
	}
	if f.Year != 0 {
		clause += fmt.Sprintf(" AND EXTRACT(YEAR FROM date)::int = $%d", argIndex)
		args = append(args, f.Year)
		argIndex++
	}
	if f.Month != 0 {
		clause += fmt.Sprintf(" AND EXTRACT(MONTH FROM date)::int = $%d", argIndex)
		args = append(args, f.Month)
		argIndex++
	}

	return clause, args
}

// GetExpense retrieves an expense by its primary key.
func (r *Repository) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	query := `
		SELECT id, user_id, date, category, amount_cents, description
		FROM expenses
		WHERE id = $1
	`

	expense, err := scanExpense(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExpenseNotFound
		}
		return nil, &StorageError{Op: "get expense by ID", Err: err}
	}

	return expense, nil
}

// SaveExpense upserts an expense by primary key. An unset ID is assigned a
// new ULID and the row inserted; a set ID updates the mutable fields in
// place. user_id is never touched by the update arm, so ownership cannot
// drift, and one logical record maps to exactly one row.
func (r *Repository) SaveExpense(ctx context.Context, expense *model.Expense) error {
	if expense.ID == "" {
		expense.ID = ulid.Make().String()
	}

	query := `
		INSERT INTO expenses (id, user_id, date, category, amount_cents, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date,
			category = EXCLUDED.category,
			amount_cents = EXCLUDED.amount_cents,
			description = EXCLUDED.description
	`

	_, err := r.db.Exec(ctx, query,
		expense.ID,
		expense.UserID,
		expense.Date,
		expense.Category,
		expense.AmountCents,
		expense.Description,
	)
	if err != nil {
		return &StorageError{Op: "save expense", Err: err}
	}

	return nil
}

// DeleteExpense removes the row if present. Deleting a non-existent id is a
// no-op, not an error; ownership checks happen before this call.
func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return &StorageError{Op: "delete expense", Err: err}
	}
	return nil
}

// ListExpenses retrieves a page of matching expenses ordered by date
// descending, ties broken by id ascending (ids are ULIDs, so id order is
// insertion order). limit must be positive.
func (r *Repository) ListExpenses(ctx context.Context, filter ExpenseFilter, offset, limit int) ([]*model.Expense, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if offset < 0 {
		return nil, ErrInvalidOffset
	}

	clause, args := filter.where()
	query := fmt.Sprintf(`
		SELECT id, user_id, date, category, amount_cents, description
		FROM expenses
		%s
		ORDER BY date DESC, id ASC
		LIMIT $%d OFFSET $%d
	`, clause, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "list expenses", Err: err}
	}
	defer rows.Close()

	var expenses []*model.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan expense", Err: err}
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate expenses", Err: err}
	}

	return expenses, nil
}

// CountExpenses returns the total number of rows matching the filter,
// independent of any pagination window.
func (r *Repository) CountExpenses(ctx context.Context, filter ExpenseFilter) (int64, error) {
	clause, args := filter.where()
	query := fmt.Sprintf(`SELECT COUNT(*) FROM expenses %s`, clause)

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, &StorageError{Op: "count expenses", Err: err}
	}
	return count, nil
}

// ListExpenditureYears returns the distinct years, ascending, that have at
// least one expense for the user.
func (r *Repository) ListExpenditureYears(ctx context.Context, userID string) ([]int, error) {
	query := `
		SELECT DISTINCT EXTRACT(YEAR FROM date)::int AS year
		FROM expenses
		WHERE user_id = $1
		ORDER BY year ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, &StorageError{Op: "list expenditure years", Err: err}
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, &StorageError{Op: "scan year", Err: err}
		}
		years = append(years, year)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate years", Err: err}
	}

	return years, nil
}

// SumAmountsByCategory returns per-category totals in cents for the filter,
// computed in a single grouped query. Categories with no matching rows are
// omitted, never reported as zero.
func (r *Repository) SumAmountsByCategory(ctx context.Context, filter ExpenseFilter) (map[string]int64, error) {
	clause, args := filter.where()
	query := fmt.Sprintf(`
		SELECT category, SUM(amount_cents)
		FROM expenses
		%s
		GROUP BY category
	`, clause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "sum amounts by category", Err: err}
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var category string
		var total int64
		if err := rows.Scan(&category, &total); err != nil {
			return nil, &StorageError{Op: "scan category sum", Err: err}
		}
		sums[category] = total
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate category sums", Err: err}
	}

	return sums, nil
}

// AverageAmountsByCategory returns the exact per-category arithmetic mean in
// cents for the filter, in a single grouped query. The database supplies the
// exact sum and row count and the rational is assembled here; SQL AVG rounds
// to a finite numeric scale and must never touch the value.
func (r *Repository) AverageAmountsByCategory(ctx context.Context, filter ExpenseFilter) (map[string]*big.Rat, error) {
	clause, args := filter.where()
	query := fmt.Sprintf(`
		SELECT category, SUM(amount_cents), COUNT(*)
		FROM expenses
		%s
		GROUP BY category
	`, clause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "average amounts by category", Err: err}
	}
	defer rows.Close()

	averages := make(map[string]*big.Rat)
	for rows.Next() {
		var category string
		var sum, count int64
		if err := rows.Scan(&category, &sum, &count); err != nil {
			return nil, &StorageError{Op: "scan category average", Err: err}
		}
		// count comes from GROUP BY, so it is never zero.
		averages[category] = big.NewRat(sum, count)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate category averages", Err: err}
	}

	return averages, nil
}

// SumAmounts returns the grand total in cents across all categories for the
// filter. No matching rows yields zero.
func (r *Repository) SumAmounts(ctx context.Context, filter ExpenseFilter) (int64, error) {
	clause, args := filter.where()
	query := fmt.Sprintf(`SELECT COALESCE(SUM(amount_cents), 0) FROM expenses %s`, clause)

	var total int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, &StorageError{Op: "sum amounts", Err: err}
	}
	return total, nil
}

// scanExpense scans a single row into an Expense model.
func scanExpense(row pgx.Row) (*model.Expense, error) {
	var expense model.Expense
	err := row.Scan(
		&expense.ID,
		&expense.UserID,
		&expense.Date,
		&expense.Category,
		&expense.AmountCents,
		&expense.Description,
	)
	if err != nil {
		return nil, err
	}
	expense.Date = model.DateOnly(expense.Date)
	return &expense, nil
}
