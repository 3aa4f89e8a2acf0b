package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stratagem-engine/stratagem/pkg/savegame"
)

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to the database and ensures the saves
// table exists. The caller is responsible for calling Close() on the
// repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS saves (
		session_id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL,
		snapshot BYTEA NOT NULL
	);
	`
	if _, err := conn.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snapshot *savegame.Snapshot) error {
	data, err := savegame.Encode(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %v", err)
	}

	q := `
	INSERT INTO saves (session_id, name, created_at, saved_at, snapshot)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (session_id) DO UPDATE SET name = $2, saved_at = $4, snapshot = $5;
	`
	_, err = r.conn.Exec(ctx, q, snapshot.SessionID, snapshot.Name, snapshot.CreatedAt, snapshot.SavedAt, data)
	if err != nil {
		return fmt.Errorf("failed to insert save: %v", err)
	}

	return nil
}

func (r *PostgresRepository) LoadSnapshot(ctx context.Context, sessionID uuid.UUID) (*savegame.Snapshot, error) {
	q := `
	SELECT snapshot FROM saves WHERE session_id = $1;
	`
	var data []byte
	if err := r.conn.QueryRow(ctx, q, sessionID).Scan(&data); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan save: %v", err)
	}

	snapshot, err := savegame.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %v", err)
	}

	return snapshot, nil
}

func (r *PostgresRepository) ListSaves(ctx context.Context) ([]SaveSummary, error) {
	q := `
	SELECT session_id, name, created_at, saved_at FROM saves ORDER BY saved_at DESC;
	`
	rows, err := r.conn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query saves: %v", err)
	}
	defer rows.Close()

	var summaries []SaveSummary
	for rows.Next() {
		var summary SaveSummary
		if err := rows.Scan(&summary.SessionID, &summary.Name, &summary.CreatedAt, &summary.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan save: %v", err)
		}
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (r *PostgresRepository) DeleteSave(ctx context.Context, sessionID uuid.UUID) error {
	q := `
	DELETE FROM saves WHERE session_id = $1;
	`
	tag, err := r.conn.Exec(ctx, q, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete save: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{}
	}

	return nil
}
