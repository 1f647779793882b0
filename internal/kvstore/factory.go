package kvstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/scrapetrack/internal/config"
)

// New creates the Store selected by cfg.History.Backend.
// Parameters:
//   - ctx: context used for backend initialization (bucket checks).
//   - cfg: full application configuration.
// Returns:
//   - Store: initialized backend.
//   - error: non-nil if the backend cannot be created.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.History.Backend) {
	case "memory":
		return NewMemory(), nil
	case "s3":
		store, err := NewS3Store(ctx, &S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			Prefix:    cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite", "postgres":
		dbCfg := cfg.Database
		dbCfg.Driver = strings.ToLower(cfg.History.Backend)
		db, err := InitDB(&dbCfg)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}
