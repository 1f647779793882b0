package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/scrapetrack/internal/config"
	"github.com/timmy/scrapetrack/internal/domain"
	"github.com/timmy/scrapetrack/internal/history"
	"github.com/timmy/scrapetrack/internal/kvstore"
	"github.com/timmy/scrapetrack/internal/logger"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stderr,
		ServiceName: "scrapetrack-history",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	action := flag.String("action", "stats", "Action to run: export, import, stats, list, clear")
	file := flag.String("file", "", "File to export to or import from (default stdout/stdin)")
	platform := flag.String("platform", "", "Only list records of this platform")
	status := flag.String("status", "", "Only list records with this status")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	kv, err := kvstore.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize history backend")
	}
	defer kv.Close()

	store := history.NewStore(kv, &history.Config{
		Key:      cfg.History.Key,
		MaxItems: cfg.History.MaxItems,
	})

	appLogger.WithFields(logger.Fields{
		"action":  *action,
		"backend": cfg.History.Backend,
	}).Info("Running history command")

	if err := run(ctx, store, *action, *file, history.Filter{
		Platform: *platform,
		Status:   domain.SessionStatus(*status),
	}); err != nil {
		appLogger.WithError(err).Fatal("History command failed")
	}
}

func run(ctx context.Context, store *history.Store, action, file string, filter history.Filter) error {
	switch action {
	case "export":
		data, err := store.Export(ctx)
		if err != nil {
			return err
		}
		if file == "" {
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		}
		return os.WriteFile(file, data, 0o644)

	case "import":
		var (
			data []byte
			err  error
		)
		if file == "" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return fmt.Errorf("failed to read import data: %w", err)
		}
		n, err := store.Import(ctx, data)
		if err != nil {
			return err
		}
		logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Import finished")
		return nil

	case "stats":
		return printJSON(store.Statistics(ctx))

	case "list":
		if filter.Status != "" && !filter.Status.Valid() {
			return fmt.Errorf("invalid status %q", filter.Status)
		}
		return printJSON(store.Filter(ctx, filter))

	case "clear":
		store.Clear(ctx)
		logger.CtxInfo(ctx, "History cleared")
		return nil

	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
