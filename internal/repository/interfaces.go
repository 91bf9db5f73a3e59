package repository

import (
	"context"
	"time"

	"literary-archive/internal/domain/session"
	"literary-archive/internal/domain/staging"

	"github.com/google/uuid"
)

// PurgeCutoffs selects rows the purge pass may hard-delete.
type PurgeCutoffs struct {
	FinalizedBefore     time.Time
	StaleBefore         time.Time
	CleanupFailedBefore time.Time
}

type StagingRepository interface {
	Create(ctx context.Context, rec *staging.Record) error
	GetByID(ctx context.Context, id uuid.UUID) (staging.Record, error)

	// Update persists rec only if the stored version still equals rec.Version,
	// then advances rec.Version. A stale version yields ErrConflict.
	Update(ctx context.Context, rec *staging.Record) error

	ListStale(ctx context.Context, statuses []staging.Status, updatedBefore time.Time, limit int) ([]staging.Record, error)
	Purge(ctx context.Context, cutoffs PurgeCutoffs) (int64, error)
}

type SessionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (session.VisitorSession, error)
}
