package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres mirrors lobby state into a single lobbies table, storing
// the player roster as JSON rather than a join table: the mirror is
// written and deleted atomically with lobby lifetime and never read
// back by the core.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) UpsertLobby(ctx context.Context, rec LobbyRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return fmt.Errorf("persistence: marshal players: %w", err)
	}

	q := `
	INSERT INTO lobbies (id, code, status, max_players, players, countdown_start_time, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		code = EXCLUDED.code,
		status = EXCLUDED.status,
		max_players = EXCLUDED.max_players,
		players = EXCLUDED.players,
		countdown_start_time = EXCLUDED.countdown_start_time,
		updated_at = EXCLUDED.updated_at
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			rec.ID, rec.Code, rec.Status, rec.MaxPlayers, players,
			rec.CountdownStartTime, rec.CreatedAt, rec.UpdatedAt,
		)
		return execErr
	})
}

func (p *Postgres) DeleteLobby(ctx context.Context, lobbyID string) error {
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, `DELETE FROM lobbies WHERE id = $1`, lobbyID)
		return execErr
	})
}
