package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/config"
	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/db"
	"github.com/carehub/carehub/internal/platform/snapshot"
)

// backend is an opened storage slot. pool is nil unless the backend is
// postgres.
type backend struct {
	name    string
	adapter records.Adapter
	pool    *pgxpool.Pool
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// openBackend connects to the storage backend called name, using the
// connection settings in cfg.
func openBackend(ctx context.Context, cfg *config.Config, name string) (*backend, error) {
	switch name {
	case config.BackendFile:
		return &backend{name: name, adapter: snapshot.NewFileAdapter(cfg.SnapshotPath)}, nil
	case config.BackendMemory:
		return &backend{name: name, adapter: snapshot.NewMemoryAdapter()}, nil
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		pool, err := db.NewPool(ctx, db.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DBMaxConns,
			MinConns:    cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		return &backend{
			name:    name,
			adapter: snapshot.NewPostgresAdapter(pool, cfg.SnapshotKey),
			pool:    pool,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", name)
}

// applySchema runs the embedded migrations when the backend is postgres.
func applySchema(ctx context.Context, b *backend, logger zerolog.Logger) error {
	if b.pool == nil {
		return nil
	}
	count, err := db.NewSchemaMigrator(b.pool).Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if count > 0 {
		logger.Info().Int("applied", count).Msg("applied schema migrations")
	}
	return nil
}

// copySnapshot moves the snapshot in from into to. The snapshot is
// restored into a scratch store first so a corrupt source never reaches
// the target.
func copySnapshot(ctx context.Context, from, to records.Adapter) (*records.Snapshot, error) {
	snap, err := from.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("source slot is empty")
	}
	scratch := records.NewStore()
	if err := scratch.Restore(snap); err != nil {
		return nil, err
	}
	out := scratch.Snapshot()
	if err := to.Save(ctx, out); err != nil {
		return nil, fmt.Errorf("write target: %w", err)
	}
	return out, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
