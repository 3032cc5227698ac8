// Package main is the entrypoint for the pocketledger admin CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/pocketledger/pocketledger/internal/cache"
	"github.com/pocketledger/pocketledger/internal/config"
	"github.com/pocketledger/pocketledger/internal/repository"
	"github.com/pocketledger/pocketledger/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	categories, err := cfg.Categories()
	if err != nil {
		logger.Error("failed to parse categories", "error", err)
		os.Exit(1)
	}

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", err.Error()),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()

	// Initialize summary cache, if configured
	var summaryCache *cache.Cache
	if cfg.RedisURL != "" {
		summaryCache, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to Redis",
				slog.String("error", err.Error()),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		defer summaryCache.Close()
	}

	// Initialize services
	expenseSvc := service.NewExpenseService(repo, summaryCache, categories, cfg.DefaultPageSize)
	summarySvc := service.NewMonthlySummaryService(repo, summaryCache)
	authSvc := service.NewAuthService(repo)

	switch os.Args[1] {
	case "register":
		err = runRegister(ctx, authSvc, os.Args[2:])
	case "passwd":
		err = runPasswd(ctx, repo, authSvc, os.Args[2:])
	case "import":
		err = runImport(ctx, repo, expenseSvc, os.Args[2:])
	case "summary":
		err = runSummary(ctx, repo, summarySvc, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func runRegister(ctx context.Context, authSvc *service.AuthService, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "username for the new account")
	password := fs.String("password", "", "password for the new account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := authSvc.Register(ctx, *username, *password)
	if err != nil {
		return err
	}

	fmt.Printf("registered user %s (%s)\n", user.Username, user.ID)
	return nil
}

func runPasswd(ctx context.Context, repo *repository.Repository, authSvc *service.AuthService, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	username := fs.String("username", "", "account to update")
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := repo.GetUserByUsername(ctx, *username)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	if err := authSvc.ChangePassword(ctx, user.ID, *current, *next); err != nil {
		return err
	}

	fmt.Printf("password updated for %s\n", user.Username)
	return nil
}

func runImport(ctx context.Context, repo *repository.Repository, expenseSvc *service.ExpenseService, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	username := fs.String("username", "", "owner of the imported expenses")
	file := fs.String("file", "", "CSV file with date,category,amount,description rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := repo.GetUserByUsername(ctx, *username)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	imported, err := expenseSvc.ImportFromCSV(ctx, user, f)
	if err != nil {
		return fmt.Errorf("import aborted, no rows committed: %w", err)
	}

	fmt.Printf("imported %d expenses for %s\n", imported, user.Username)
	return nil
}

func runSummary(ctx context.Context, repo *repository.Repository, summarySvc *service.MonthlySummaryService, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	username := fs.String("username", "", "user to summarize")
	year := fs.Int("year", 0, "calendar year")
	month := fs.Int("month", 0, "calendar month (1-12)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := repo.GetUserByUsername(ctx, *username)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	summary, err := summarySvc.ComputeMonthlySummary(ctx, user, *year, *month)
	if err != nil {
		return err
	}

	fmt.Printf("%04d-%02d total: %s\n", summary.Year, summary.Month, formatCents(summary.TotalCents))

	categories := make([]string, 0, len(summary.CategoryTotals))
	for category := range summary.CategoryTotals {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		avg := summary.CategoryAverages[category]
		fmt.Printf("  %-20s total %10s  avg %10s\n",
			category,
			formatCents(summary.CategoryTotals[category]),
			avg.FloatString(2),
		)
	}
	return nil
}

// formatCents renders integer cents as a decimal string for display only;
// amounts are never computed on this form.
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}
	if cfg.IsDevelopment() {
		opts.AddSource = true
	}

	// Production output is always machine-readable regardless of LOG_FORMAT.
	if cfg.IsProduction() || cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactURL strips credentials from a connection URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ledgerctl <register|passwd|import|summary> [flags]")
	fmt.Fprintln(os.Stderr, "  register -username <name> -password <secret>")
	fmt.Fprintln(os.Stderr, "  passwd   -username <name> -current <secret> -new <secret>")
	fmt.Fprintln(os.Stderr, "  import   -username <name> -file <expenses.csv>")
	fmt.Fprintln(os.Stderr, "  summary  -username <name> -year <yyyy> -month <1-12>")
}
