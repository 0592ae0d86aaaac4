package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/rwaoracle/internal/analytics"
	"github.com/mtlprog/rwaoracle/internal/api"
	"github.com/mtlprog/rwaoracle/internal/config"
	"github.com/mtlprog/rwaoracle/internal/database"
	"github.com/mtlprog/rwaoracle/internal/export"
	"github.com/mtlprog/rwaoracle/internal/ledger"
	"github.com/mtlprog/rwaoracle/internal/oracle"
	"github.com/mtlprog/rwaoracle/internal/source"
	"github.com/mtlprog/rwaoracle/internal/valuation"
	"github.com/mtlprog/rwaoracle/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:   "rwaoracle",
		Usage:  "RWA pricing ledger and oracle consensus service",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and background workers",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
			{
				Name:  "reconcile",
				Usage: "rewrite cached valuations from the ledger",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "token", Usage: "reconcile a single token (default: all)"},
				},
				Action: reconcile,
			},
			{
				Name:  "export-history",
				Usage: "write a token's ledger to an .xlsx workbook",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "token", Required: true},
					&cli.StringFlag{Name: "out", Value: "history.xlsx"},
				},
				Action: exportHistory,
			},
		},
	}

	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

// components is the wired service graph shared by every command.
type components struct {
	pool       *pgxpool.Pool
	valuations *valuation.Service
	reconciler *valuation.Reconciler
	ledger     *ledger.Service
	analytics  *analytics.Service
	oracle     *oracle.Service
	sources    *source.Service
}

func (c *components) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// build wires every service. Without DATABASE_URL all state lives in memory.
func build(ctx context.Context, cfg config.Config) (*components, error) {
	scorer, err := source.NewScorer(cfg.ReliabilityStrategy, cfg.ReliabilityReward, cfg.ReliabilityPenalty, cfg.ReliabilityEMAAlpha)
	if err != nil {
		return nil, fmt.Errorf("configuring reliability scoring: %w", err)
	}

	var (
		pool           *pgxpool.Pool
		valuationRepo  valuation.Repository
		ledgerRepo     ledger.Repository
		predictionRepo oracle.Repository
		sourceRepo     source.Repository
	)
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory storage")
		valuationRepo = valuation.NewMemoryRepository()
		ledgerRepo = ledger.NewMemoryRepository()
		predictionRepo = oracle.NewMemoryRepository()
		sourceRepo = source.NewMemoryRepository()
	} else {
		pool, err = database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, pool, database.Migrations()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		valuationRepo = valuation.NewPgRepository(pool)
		ledgerRepo = ledger.NewPgRepository(pool)
		predictionRepo = oracle.NewPgRepository(pool)
		sourceRepo = source.NewPgRepository(pool)
	}

	valuationSvc := valuation.NewService(valuationRepo)
	ledgerSvc := ledger.NewService(ledgerRepo, valuationSvc)

	return &components{
		pool:       pool,
		valuations: valuationSvc,
		reconciler: valuation.NewReconciler(valuationSvc, ledgerSvc),
		ledger:     ledgerSvc,
		analytics:  analytics.NewService(valuationSvc, ledgerSvc),
		oracle:     oracle.NewService(predictionRepo, valuationSvc, valuationSvc, ledgerSvc),
		sources:    source.NewService(sourceRepo, scorer),
	}, nil
}

func serve(c *cli.Context) error {
	ctx, stop := context.WithCancel(c.Context)
	defer stop()

	cfg := config.Load()
	comp, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	// Start workers
	reconcileWorker := worker.NewReconcileWorker(comp.reconciler, cfg.ReconcileInterval)
	go reconcileWorker.Run(ctx)

	if cfg.SheetsEnabled() {
		writer, err := export.NewSheetsWriter(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleCredentialsJSON)
		if err != nil {
			return fmt.Errorf("creating sheets writer: %w", err)
		}
		exportWorker := worker.NewExportWorker(export.NewService(comp.valuations, comp.analytics, writer), cfg.ExportInterval)
		go exportWorker.Run(ctx)
	} else {
		slog.Info("Google Sheets export not configured, skipping")
	}

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, admin endpoints are unprotected")
	}
	if cfg.OracleAPIKey == "" {
		slog.Warn("ORACLE_API_KEY not set, oracle endpoints accept the admin key only")
	}

	// Start HTTP server
	srv := api.NewServer(cfg.HTTPPort, api.Services{
		Valuations: comp.valuations,
		Reconciler: comp.reconciler,
		Ledger:     comp.ledger,
		Analytics:  comp.analytics,
		Oracle:     comp.oracle,
		Sources:    comp.sources,
	}, api.Keys{Admin: cfg.AdminAPIKey, Oracle: cfg.OracleAPIKey})

	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

func migrate(c *cli.Context) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := database.Connect(c.Context, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return database.RunMigrations(c.Context, pool, database.Migrations())
}

func reconcile(c *cli.Context) error {
	cfg := config.Load()
	comp, err := build(c.Context, cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	if c.IsSet("token") {
		tokenID := c.Int64("token")
		changed, err := comp.reconciler.Reconcile(c.Context, tokenID)
		if err != nil {
			return err
		}
		slog.Info("reconciled", "tokenId", tokenID, "changed", changed)
		return nil
	}

	changed, err := comp.reconciler.ReconcileAll(c.Context)
	if err != nil {
		return err
	}
	slog.Info("reconciled all assets", "changed", changed)
	return nil
}

func exportHistory(c *cli.Context) error {
	cfg := config.Load()
	comp, err := build(c.Context, cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	tokenID := c.Int64("token")
	entries, err := comp.ledger.All(c.Context, tokenID)
	if err != nil {
		return err
	}

	out, err := os.Create(c.String("out"))
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if err := export.WriteHistoryXLSX(out, entries); err != nil {
		return err
	}
	slog.Info("history exported", "tokenId", tokenID, "entries", len(entries), "file", c.String("out"))
	return out.Close()
}
