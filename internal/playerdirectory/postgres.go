package playerdirectory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres resolves names against a durable device -> display_name
// table, upserting a generated name for devices seen for the first
// time.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool. Callers own the pool's
// lifecycle.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) ResolveName(ctx context.Context, deviceID string) (string, error) {
	var name string
	err := p.pool.QueryRow(ctx, `SELECT display_name FROM device_players WHERE device_id = $1`, deviceID).Scan(&name)
	if err == nil {
		return name, nil
	}
	if err != pgx.ErrNoRows {
		return "", fmt.Errorf("playerdirectory: lookup device %s: %w", deviceID, err)
	}

	name = fallbackName(deviceID)
	insertErr := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, `
			INSERT INTO device_players (device_id, display_name)
			VALUES ($1, $2)
			ON CONFLICT (device_id) DO NOTHING
		`, deviceID, name)
		return execErr
	})
	if insertErr != nil {
		return "", fmt.Errorf("playerdirectory: register device %s: %w", deviceID, insertErr)
	}
	return name, nil
}
