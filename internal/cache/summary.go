package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pocketledger/pocketledger/internal/model"
)

const (
	summaryKeyPrefix = "summary:"

	// DefaultSummaryTTL is the TTL for cached monthly summaries.
	DefaultSummaryTTL = 15 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// cachedSummary is the wire form of a monthly summary. Averages travel as
// exact num/den rational strings so no precision is lost through the cache.
type cachedSummary struct {
	TotalCents       int64             `json:"total_cents"`
	CategoryTotals   map[string]int64  `json:"category_totals"`
	CategoryAverages map[string]string `json:"category_averages"`
}

// GetSummary retrieves a cached monthly summary for (userID, year, month).
// Returns ErrCacheMiss if not present.
func (c *Cache) GetSummary(ctx context.Context, userID string, year, month int) (*model.MonthlySummary, error) {
	data, err := c.client.Get(ctx, summaryKey(userID, year, month)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cached cachedSummary
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("decode cached summary: %w", err)
	}

	return decodeSummary(year, month, &cached)
}

// SetSummary stores a monthly summary with the default TTL.
func (c *Cache) SetSummary(ctx context.Context, userID string, summary *model.MonthlySummary) error {
	data, err := json.Marshal(encodeSummary(summary))
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	key := summaryKey(userID, summary.Year, summary.Month)
	if err := c.client.Set(ctx, key, data, DefaultSummaryTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateSummary drops the cached summary for one (userID, year, month)
// window. Missing keys are not an error.
func (c *Cache) InvalidateSummary(ctx context.Context, userID string, year, month int) error {
	if err := c.client.Del(ctx, summaryKey(userID, year, month)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func summaryKey(userID string, year, month int) string {
	return fmt.Sprintf("%s%s:%04d-%02d", summaryKeyPrefix, userID, year, month)
}

func encodeSummary(summary *model.MonthlySummary) *cachedSummary {
	averages := make(map[string]string, len(summary.CategoryAverages))
	for category, avg := range summary.CategoryAverages {
		averages[category] = avg.RatString()
	}
	return &cachedSummary{
		TotalCents:       summary.TotalCents,
		CategoryTotals:   summary.CategoryTotals,
		CategoryAverages: averages,
	}
}

func decodeSummary(year, month int, cached *cachedSummary) (*model.MonthlySummary, error) {
	averages := make(map[string]*big.Rat, len(cached.CategoryAverages))
	for category, s := range cached.CategoryAverages {
		rat, ok := new(big.Rat).SetString(s)
		if !ok {
			return nil, fmt.Errorf("decode cached summary: bad rational %q", s)
		}
		averages[category] = rat
	}

	totals := cached.CategoryTotals
	if totals == nil {
		totals = make(map[string]int64)
	}

	return &model.MonthlySummary{
		Year:             year,
		Month:            month,
		TotalCents:       cached.TotalCents,
		CategoryTotals:   totals,
		CategoryAverages: averages,
	}, nil
}
