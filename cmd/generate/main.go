// Generate writes a synthetic core banking population into the configured
// Kestrel repository.
//
// Usage:
//
//	go run ./cmd/generate -customers 500 -days 14 -defects 0.05
//
// This tool:
//  1. Builds customers, accounts, devices, auth events and transactions
//     from a fixed seed, so the same flags always produce the same data
//  2. Injects data defects and risky patterns at the requested rate
//  3. Upserts everything through the repository used by `kestrel serve`
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/generate"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func main() {
	defaults := generate.DefaultOptions(time.Now())

	envFile := flag.String("env", ".env", "optional dotenv file")
	customers := flag.Int("customers", defaults.Customers, "number of customers")
	days := flag.Int("days", defaults.Days, "days of transaction history")
	seed := flag.Uint64("seed", defaults.Seed, "random seed")
	defects := flag.Float64("defects", defaults.DefectRate, "share of records with injected defects (0-1)")
	flag.Parse()

	if err := run(*envFile, generate.Options{
		Customers:  *customers,
		Days:       *days,
		Seed:       *seed,
		DefectRate: *defects,
		Now:        defaults.Now,
	}); err != nil {
		slog.Error("generate failed", "error", err)
		os.Exit(1)
	}
}

func run(envFile string, opts generate.Options) error {
	if opts.Customers <= 0 || opts.Days <= 0 {
		return fmt.Errorf("customers and days must be positive")
	}
	if opts.DefectRate < 0 || opts.DefectRate > 1 {
		return fmt.Errorf("defects must be between 0 and 1, got %v", opts.DefectRate)
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	slog.SetDefault(config.NewLogger(cfg.Logging, os.Stdout))

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()

	start := time.Now()
	ds := generate.Generate(opts)

	counts, err := ds.Save(context.Background(), repo)
	if err != nil {
		return err
	}

	slog.Info("dataset generated",
		"driver", cfg.Repository.Driver,
		"seed", opts.Seed,
		"customers", counts.Customers,
		"accounts", counts.Accounts,
		"devices", counts.Devices,
		"auth_events", counts.AuthEvents,
		"transactions", counts.Transactions,
		"duration", time.Since(start).String(),
	)
	return nil
}
