package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/glados-labs/glados/internal/channel/telegram"
	"github.com/glados-labs/glados/internal/daemon"
	"github.com/glados-labs/glados/pkg/journal"
	"github.com/glados-labs/glados/pkg/kv"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to config file")
	envPath := flag.String("env", "", "Path to .env file (optional)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("glados %s (%s)\n", version, commit)
		os.Exit(0)
	}

	// Optional .env for local runs; containers get real env vars.
	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			fmt.Fprintf(os.Stderr, "load env %s: %v\n", *envPath, err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	// Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cp := *configPath
	if cp == "" {
		cp = os.Getenv("GLADOS_CONFIG_PATH")
	}

	cfg, err := daemon.LoadConfig(cp)
	if err != nil {
		slog.Error("failed to load config", "path", cp, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Journal store (Postgres)
	store, err := journal.NewPostgresStore(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		slog.Error("failed to init journal schema", "error", err)
		os.Exit(1)
	}

	jrnl, err := journal.New(ctx, store)
	if err != nil {
		slog.Error("failed to load journal", "error", err)
		os.Exit(1)
	}

	// Daemon state (sqlite)
	state, err := kv.Open(cfg.StatePath)
	if err != nil {
		slog.Error("failed to open state db", "path", cfg.StatePath, "error", err)
		os.Exit(1)
	}
	defer state.Close()

	// Telegram channel
	ch := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		AllowedChat: cfg.Telegram.ChatID,
	}, state, logger)

	slog.Info("glados starting",
		"version", version,
		"state", cfg.StatePath,
	)

	// Create and start daemon
	d, err := daemon.New(cfg, ch, jrnl, state)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}

	slog.Info("glados stopped")
}
