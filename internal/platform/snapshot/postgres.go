package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carehub/carehub/internal/domain/records"
)

// querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	loadSnapshotSQL = `SELECT data FROM carehub_snapshots WHERE key = $1`
	saveSnapshotSQL = `INSERT INTO carehub_snapshots (key, data, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, saved_at = EXCLUDED.saved_at`
)

// PostgresAdapter keeps the snapshot as one JSONB row of the
// carehub_snapshots table, addressed by key.
type PostgresAdapter struct {
	db  querier
	key string
}

// NewPostgresAdapter returns an adapter for the row named key.
func NewPostgresAdapter(db querier, key string) *PostgresAdapter {
	return &PostgresAdapter{db: db, key: key}
}

func (a *PostgresAdapter) Load(ctx context.Context) (*records.Snapshot, error) {
	var data []byte
	err := a.db.QueryRow(ctx, loadSnapshotSQL, a.key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot %s: %w", a.key, err)
	}
	return records.DecodeSnapshot(data)
}

func (a *PostgresAdapter) Save(ctx context.Context, snap *records.Snapshot) error {
	data, err := records.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := a.db.Exec(ctx, saveSnapshotSQL, a.key, data, snap.SavedAt); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", a.key, err)
	}
	return nil
}

func (a *PostgresAdapter) String() string {
	return "postgres:" + a.key
}
