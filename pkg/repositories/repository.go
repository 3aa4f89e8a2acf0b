package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stratagem-engine/stratagem/pkg/savegame"
)

// SaveSummary describes a stored save without its snapshot payload.
type SaveSummary struct {
	SessionID uuid.UUID
	Name      string
	CreatedAt time.Time
	SavedAt   time.Time
}

type Repository interface {
	Close(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snapshot *savegame.Snapshot) error
	LoadSnapshot(ctx context.Context, sessionID uuid.UUID) (*savegame.Snapshot, error)
	ListSaves(ctx context.Context) ([]SaveSummary, error)
	DeleteSave(ctx context.Context, sessionID uuid.UUID) error
}
