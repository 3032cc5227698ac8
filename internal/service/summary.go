package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/pocketledger/pocketledger/internal/cache"
	"github.com/pocketledger/pocketledger/internal/model"
	"github.com/pocketledger/pocketledger/internal/repository"
)

// MonthlySummaryService derives expenditure reports for a (user, year,
// month) window from the repository's aggregation primitives. Each report is
// a single round-trip to storage regardless of category cardinality.
type MonthlySummaryService struct {
	repo  *repository.Repository
	cache *cache.Cache // nil disables report caching
}

// NewMonthlySummaryService creates a new MonthlySummaryService.
func NewMonthlySummaryService(repo *repository.Repository, summaryCache *cache.Cache) *MonthlySummaryService {
	return &MonthlySummaryService{repo: repo, cache: summaryCache}
}

// ComputeTotalExpenditure returns the user's grand total in cents for the window.
func (s *MonthlySummaryService) ComputeTotalExpenditure(ctx context.Context, user *model.User, year, month int) (int64, error) {
	return s.repo.SumAmounts(ctx, monthFilter(user, year, month))
}

// ComputePerCategoryTotals returns per-category totals in cents for the
// window. Categories without expenses are omitted.
func (s *MonthlySummaryService) ComputePerCategoryTotals(ctx context.Context, user *model.User, year, month int) (map[string]int64, error) {
	return s.repo.SumAmountsByCategory(ctx, monthFilter(user, year, month))
}

// ComputePerCategoryAverages returns exact per-category means in cents for
// the window. Categories without expenses are omitted.
func (s *MonthlySummaryService) ComputePerCategoryAverages(ctx context.Context, user *model.User, year, month int) (map[string]*big.Rat, error) {
	return s.repo.AverageAmountsByCategory(ctx, monthFilter(user, year, month))
}

// ComputeMonthlySummary bundles total, per-category totals and per-category
// averages into one report, served from the cache when fresh. Cache
// failures fall through to storage; the cache is never authoritative.
func (s *MonthlySummaryService) ComputeMonthlySummary(ctx context.Context, user *model.User, year, month int) (*model.MonthlySummary, error) {
	if s.cache != nil {
		summary, err := s.cache.GetSummary(ctx, user.ID, year, month)
		if err == nil {
			return summary, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			slog.WarnContext(ctx, "summary cache read failed",
				"user_id", user.ID,
				"year", year,
				"month", month,
				"error", err)
		}
	}

	filter := monthFilter(user, year, month)

	total, err := s.repo.SumAmounts(ctx, filter)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.SumAmountsByCategory(ctx, filter)
	if err != nil {
		return nil, err
	}
	averages, err := s.repo.AverageAmountsByCategory(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &model.MonthlySummary{
		Year:             year,
		Month:            month,
		TotalCents:       total,
		CategoryTotals:   totals,
		CategoryAverages: averages,
	}

	if s.cache != nil {
		if err := s.cache.SetSummary(ctx, user.ID, summary); err != nil {
			slog.WarnContext(ctx, "summary cache write failed",
				"user_id", user.ID,
				"year", year,
				"month", month,
				"error", err)
		}
	}

	return summary, nil
}

func monthFilter(user *model.User, year, month int) repository.ExpenseFilter {
	return repository.ExpenseFilter{UserID: user.ID, Year: year, Month: month}
}
