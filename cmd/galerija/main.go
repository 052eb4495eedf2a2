package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/galerija/internal/api"
	"github.com/erazemk/galerija/internal/config"
	"github.com/erazemk/galerija/internal/db"
	"github.com/erazemk/galerija/internal/ledger"
	"github.com/erazemk/galerija/internal/model"
	"github.com/erazemk/galerija/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("galerija", flag.ContinueOnError)

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")

	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")

	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	fs.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")

	fs.StringVar(&cfg.Prices, "prices", cfg.Prices, "")
	fs.TextVar(&cfg.Royalty, "royalty", cfg.Royalty, "")
	fs.StringVar(&cfg.Creator, "creator", cfg.Creator, "")
	fs.StringVar(&cfg.BaseURI, "base-uri", cfg.BaseURI, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: galerija [flags]

Flags:
  -d, -db <path>          SQLite database path (default: galerija.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

First run only:
  -prices <list>          comma-separated item prices, e.g. 1,2.5,3
  -royalty <amount>       fixed royalty paid to the creator per sale (default: 0)
  -creator <name>         royalty recipient (default: the admin user)
  -base-uri <uri>         metadata base URI; item URIs append the item id

Every flag also reads a GALERIJA_* environment variable, optionally from .env.
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	// Check if DB exists, create the marketplace if not.
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		prices, err := config.ParsePrices(cfg.Prices)
		if err != nil {
			slog.Error("a new marketplace needs -prices", "error", err)
			os.Exit(1)
		}

		database, password, err := initDatabase(cfg.DBPath, cfg.AdminUser, marketSetup{
			Prices:  prices,
			Royalty: cfg.Royalty,
			Creator: model.Identity(cfg.Creator),
			BaseURI: cfg.BaseURI,
		})
		if err != nil {
			slog.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		database.Close()

		printInitResult(cfg.DBPath, cfg.AdminUser, password, len(prices))
		fmt.Println()
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	hub := ledger.NewHub()
	l, err := store.OpenLedger(ctx, database, ledger.WithHub(hub))
	if err != nil {
		slog.Error("failed to restore ledger", "error", err)
		os.Exit(1)
	}
	if l == nil {
		slog.Error("database has no marketplace", "path", cfg.DBPath)
		os.Exit(1)
	}

	slog.Info("ledger restored",
		"path", cfg.DBPath,
		"items", l.ItemCount(),
		"administrator", l.Administrator(),
		"pool", l.Pool(),
	)

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		os.Exit(1)
	}

	if n, err := store.PurgeExpiredTokens(ctx, database, time.Now()); err != nil {
		slog.Warn("failed to purge revoked tokens", "error", err)
	} else if n > 0 {
		slog.Info("purged revoked tokens", "count", n)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(database, l, hub, jwtSecret))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped, closing database")
}
