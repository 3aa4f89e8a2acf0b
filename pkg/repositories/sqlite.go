package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stratagem-engine/stratagem/pkg/savegame"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS saves (
		session_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		saved_at TIMESTAMP NOT NULL,
		snapshot BLOB NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snapshot *savegame.Snapshot) error {
	data, err := savegame.Encode(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %v", err)
	}

	q := `
	INSERT OR REPLACE INTO saves (session_id, name, created_at, saved_at, snapshot)
	VALUES (?, ?, ?, ?, ?);
	`
	_, err = r.db.ExecContext(ctx, q, snapshot.SessionID.String(), snapshot.Name, snapshot.CreatedAt, snapshot.SavedAt, data)
	if err != nil {
		return fmt.Errorf("failed to insert save: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, sessionID uuid.UUID) (*savegame.Snapshot, error) {
	q := `
	SELECT snapshot FROM saves WHERE session_id = ?;
	`
	var data []byte
	if err := r.db.QueryRowContext(ctx, q, sessionID.String()).Scan(&data); err != nil {
		if err == sql.ErrNoRows {
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

func (r *SQLiteRepository) ListSaves(ctx context.Context) ([]SaveSummary, error) {
	q := `
	SELECT session_id, name, created_at, saved_at FROM saves ORDER BY saved_at DESC;
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query saves: %v", err)
	}
	defer rows.Close()

	var summaries []SaveSummary
	for rows.Next() {
		var idStr string
		var summary SaveSummary
		if err := rows.Scan(&idStr, &summary.Name, &summary.CreatedAt, &summary.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan save: %v", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse session id %s: %v", idStr, err)
		}
		summary.SessionID = id
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (r *SQLiteRepository) DeleteSave(ctx context.Context, sessionID uuid.UUID) error {
	q := `
	DELETE FROM saves WHERE session_id = ?;
	`
	res, err := r.db.ExecContext(ctx, q, sessionID.String())
	if err != nil {
		return fmt.Errorf("failed to delete save: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted rows: %v", err)
	}
	if affected == 0 {
		return &ErrNotFound{}
	}

	return nil
}
