package repository

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/pocketledger/pocketledger/internal/model"
	"github.com/pocketledger/pocketledger/internal/testutil"
)

func TestRepository_SaveAndGetExpense(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	expense := testutil.NewTestExpense(t, user.ID, date(2024, 3, 15), "Food", 1250)
	if err := repo.SaveExpense(ctx, expense); err != nil {
		t.Fatalf("save expense: %v", err)
	}
	if expense.ID == "" {
		t.Fatal("expected save to assign an ID")
	}

	loaded, err := repo.GetExpense(ctx, expense.ID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	assertExpenseEqual(t, expense, loaded)

	if _, err := repo.GetExpense(ctx, "nonexistent"); !errors.Is(err, ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound, got %v", err)
	}
}

func TestRepository_SaveExpense_UpsertMutatesSingleRow(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	expense := testutil.NewTestExpense(t, user.ID, date(2024, 3, 15), "Food", 1250)
	if err := repo.SaveExpense(ctx, expense); err != nil {
		t.Fatalf("save expense: %v", err)
	}

	// Idempotent re-save of identical values.
	if err := repo.SaveExpense(ctx, expense); err != nil {
		t.Fatalf("re-save expense: %v", err)
	}

	// Mutate one field and re-save.
	expense.AmountCents = 2000
	if err := repo.SaveExpense(ctx, expense); err != nil {
		t.Fatalf("save mutated expense: %v", err)
	}

	count, err := repo.CountExpenses(ctx, ExpenseFilter{UserID: user.ID})
	if err != nil {
		t.Fatalf("count expenses: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row after upsert, got %d", count)
	}

	loaded, err := repo.GetExpense(ctx, expense.ID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if loaded.AmountCents != 2000 {
		t.Errorf("expected mutated amount 2000, got %d", loaded.AmountCents)
	}
	if loaded.Category != expense.Category || loaded.Description != expense.Description {
		t.Error("expected untouched fields to be unchanged")
	}
}

func TestRepository_DeleteExpense(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	expense := testutil.NewTestExpense(t, user.ID, date(2024, 3, 15), "Food", 500)
	if err := repo.SaveExpense(ctx, expense); err != nil {
		t.Fatalf("save expense: %v", err)
	}

	if err := repo.DeleteExpense(ctx, expense.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}
	if _, err := repo.GetExpense(ctx, expense.ID); !errors.Is(err, ErrExpenseNotFound) {
		t.Fatalf("expected ErrExpenseNotFound after delete, got %v", err)
	}

	// Deleting a non-existent id is a no-op.
	if err := repo.DeleteExpense(ctx, expense.ID); err != nil {
		t.Fatalf("expected no-op delete, got %v", err)
	}
}

func TestRepository_ListExpenses_FilterOrderingPagination(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	other := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, other); err != nil {
		t.Fatalf("create other user: %v", err)
	}

	seed := []struct {
		userID string
		date   time.Time
		cents  int64
	}{
		{user.ID, date(2024, 3, 1), 100},
		{user.ID, date(2024, 3, 10), 200},
		{user.ID, date(2024, 3, 10), 300}, // same date, later insertion
		{user.ID, date(2024, 3, 20), 400},
		{user.ID, date(2024, 4, 5), 500},  // other month
		{user.ID, date(2023, 3, 5), 600},  // other year
		{other.ID, date(2024, 3, 5), 700}, // other user
	}
	for _, s := range seed {
		e := testutil.NewTestExpense(t, s.userID, s.date, "Food", s.cents)
		if err := repo.SaveExpense(ctx, e); err != nil {
			t.Fatalf("seed expense: %v", err)
		}
	}

	filter := ExpenseFilter{UserID: user.ID, Year: 2024, Month: 3}
	expenses, err := repo.ListExpenses(ctx, filter, 0, 100)
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}

	if len(expenses) != 4 {
		t.Fatalf("expected 4 expenses, got %d", len(expenses))
	}
	for _, e := range expenses {
		if e.UserID != user.ID {
			t.Fatalf("cross-user leak: got expense owned by %s", e.UserID)
		}
	}

	// date DESC, then id ASC (insertion order) for the tie.
	wantCents := []int64{400, 200, 300, 100}
	for i, e := range expenses {
		if e.AmountCents != wantCents[i] {
			t.Fatalf("position %d: expected %d cents, got %d", i, wantCents[i], e.AmountCents)
		}
	}

	// Pagination never exceeds limit and offset skips rows.
	page, err := repo.ListExpenses(ctx, filter, 1, 2)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	if page[0].AmountCents != 200 || page[1].AmountCents != 300 {
		t.Fatalf("unexpected page contents: %d, %d", page[0].AmountCents, page[1].AmountCents)
	}

	// countBy equals the length of an unbounded findBy.
	count, err := repo.CountExpenses(ctx, filter)
	if err != nil {
		t.Fatalf("count expenses: %v", err)
	}
	if int(count) != len(expenses) {
		t.Fatalf("count %d does not match list length %d", count, len(expenses))
	}

	if _, err := repo.ListExpenses(ctx, filter, 0, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := repo.ListExpenses(ctx, filter, -1, 10); !errors.Is(err, ErrInvalidOffset) {
		t.Fatalf("expected ErrInvalidOffset, got %v", err)
	}
}

func TestRepository_ListExpenditureYears(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	for _, y := range []int{2024, 2021, 2023, 2024} {
		e := testutil.NewTestExpense(t, user.ID, date(y, 6, 1), "Travel", 1000)
		if err := repo.SaveExpense(ctx, e); err != nil {
			t.Fatalf("seed expense: %v", err)
		}
	}

	years, err := repo.ListExpenditureYears(ctx, user.ID)
	if err != nil {
		t.Fatalf("list years: %v", err)
	}

	want := []int{2021, 2023, 2024}
	if len(years) != len(want) {
		t.Fatalf("expected %v, got %v", want, years)
	}
	for i, y := range want {
		if years[i] != y {
			t.Fatalf("expected %v, got %v", want, years)
		}
	}
}

func TestRepository_Aggregates(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	seed := []struct {
		category string
		cents    int64
	}{
		{"Food", 1000},
		{"Food", 500},
		{"Food", 200},
		{"Transport", 300},
	}
	for _, s := range seed {
		e := testutil.NewTestExpense(t, user.ID, date(2024, 3, 10), s.category, s.cents)
		if err := repo.SaveExpense(ctx, e); err != nil {
			t.Fatalf("seed expense: %v", err)
		}
	}
	// An expense outside the window must not leak into the aggregates.
	outside := testutil.NewTestExpense(t, user.ID, date(2024, 4, 1), "Rent", 90000)
	if err := repo.SaveExpense(ctx, outside); err != nil {
		t.Fatalf("seed outside expense: %v", err)
	}

	filter := ExpenseFilter{UserID: user.ID, Year: 2024, Month: 3}

	sums, err := repo.SumAmountsByCategory(ctx, filter)
	if err != nil {
		t.Fatalf("sum by category: %v", err)
	}
	if sums["Food"] != 1700 || sums["Transport"] != 300 {
		t.Fatalf("unexpected sums: %v", sums)
	}
	if _, ok := sums["Rent"]; ok {
		t.Fatal("category outside the window must be omitted, not zero")
	}

	total, err := repo.SumAmounts(ctx, filter)
	if err != nil {
		t.Fatalf("sum amounts: %v", err)
	}
	var sumOfSums int64
	for _, v := range sums {
		sumOfSums += v
	}
	if total != sumOfSums {
		t.Fatalf("per-category sums %d do not add up to grand total %d", sumOfSums, total)
	}

	averages, err := repo.AverageAmountsByCategory(ctx, filter)
	if err != nil {
		t.Fatalf("average by category: %v", err)
	}
	// 1700/3 has no finite decimal form; the mean must stay exact rather
	// than arriving pre-rounded from the database.
	wantFood := big.NewRat(1700, 3)
	if got, ok := averages["Food"]; !ok || got.Cmp(wantFood) != 0 {
		t.Fatalf("Food average = %v, want %v", averages["Food"], wantFood)
	}
	if got := averages["Food"]; got.Denom().Int64() != 3 {
		t.Fatalf("Food average %v lost its exact denominator", got)
	}
	if got, ok := averages["Transport"]; !ok || got.Cmp(big.NewRat(300, 1)) != 0 {
		t.Fatalf("Transport average = %v, want 300", averages["Transport"])
	}

	// Empty window: empty maps and a zero total, never an error.
	empty := ExpenseFilter{UserID: user.ID, Year: 2019, Month: 1}
	if sums, err := repo.SumAmountsByCategory(ctx, empty); err != nil || len(sums) != 0 {
		t.Fatalf("expected empty sums, got %v (err=%v)", sums, err)
	}
	if total, err := repo.SumAmounts(ctx, empty); err != nil || total != 0 {
		t.Fatalf("expected zero total, got %d (err=%v)", total, err)
	}
}

func TestRepository_InTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	sentinel := errors.New("boom")
	err := repo.InTx(ctx, func(txRepo *Repository) error {
		e := testutil.NewTestExpense(t, user.ID, date(2024, 3, 1), "Food", 100)
		if err := txRepo.SaveExpense(ctx, e); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	count, err := repo.CountExpenses(ctx, ExpenseFilter{UserID: user.ID})
	if err != nil {
		t.Fatalf("count expenses: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to leave zero rows, got %d", count)
	}
}

func TestRepository_CreateUser_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	duplicate := testutil.NewTestUser(t)
	duplicate.Username = user.Username
	if err := repo.CreateUser(ctx, duplicate); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("expected ErrUsernameExists, got %v", err)
	}

	byName, err := repo.GetUserByUsername(ctx, user.Username)
	if err != nil {
		t.Fatalf("get user by username: %v", err)
	}
	if byName.ID != user.ID {
		t.Fatalf("expected original user %s, got %s", user.ID, byName.ID)
	}
}

func TestRepository_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t, ctx)

	if err := repo.UpdatePassword(ctx, "missing", "hash"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown id, got %v", err)
	}

	if err := repo.UpdatePassword(ctx, user.ID, "new-hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	loaded, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user by id: %v", err)
	}
	if loaded.PasswordHash != "new-hash" {
		t.Fatalf("expected replaced hash, got %q", loaded.PasswordHash)
	}
	if loaded.Username != user.Username {
		t.Fatalf("username must not change, got %q", loaded.Username)
	}
}

// newTestRepository connects to the integration database, resets the schema
// and creates one user to own test expenses.
func newTestRepository(t *testing.T, ctx context.Context) (*Repository, *model.User) {
	t.Helper()

	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetLedgerSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	return repo, user
}

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func assertExpenseEqual(t *testing.T, expected, actual *model.Expense) {
	t.Helper()

	if expected.ID != actual.ID {
		t.Fatalf("id mismatch: %q vs %q", expected.ID, actual.ID)
	}
	if expected.UserID != actual.UserID {
		t.Fatalf("user_id mismatch: %q vs %q", expected.UserID, actual.UserID)
	}
	if !expected.Date.Equal(actual.Date) {
		t.Fatalf("date mismatch: %v vs %v", expected.Date, actual.Date)
	}
	if expected.Category != actual.Category {
		t.Fatalf("category mismatch: %q vs %q", expected.Category, actual.Category)
	}
	if expected.AmountCents != actual.AmountCents {
		t.Fatalf("amount_cents mismatch: %d vs %d", expected.AmountCents, actual.AmountCents)
	}
	if expected.Description != actual.Description {
		t.Fatalf("description mismatch: %q vs %q", expected.Description, actual.Description)
	}
}
