package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"literary-archive/internal/domain/session"
	"literary-archive/internal/domain/staging"
	archive_errors "literary-archive/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStagingRepository keeps records in process memory. It backs local
// runs without Postgres and the service tests, with the same version check
// as the Postgres repository.
type MemoryStagingRepository struct {
	mu   sync.Mutex
	recs map[uuid.UUID]staging.Record
}

func NewMemoryStagingRepository() *MemoryStagingRepository {
	return &MemoryStagingRepository{recs: make(map[uuid.UUID]staging.Record)}
}

func (r *MemoryStagingRepository) Create(ctx context.Context, rec *staging.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[rec.ID]; ok {
		return archive_errors.ErrAlreadyExists
	}
	r.recs[rec.ID] = clone(*rec)
	return nil
}

func (r *MemoryStagingRepository) GetByID(ctx context.Context, id uuid.UUID) (staging.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return staging.Record{}, archive_errors.ErrNotFound
	}
	return clone(rec), nil
}

func (r *MemoryStagingRepository) Update(ctx context.Context, rec *staging.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.recs[rec.ID]
	if !ok {
		return archive_errors.ErrNotFound
	}
	if stored.Version != rec.Version {
		return archive_errors.ErrConflict
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	rec.Version++
	updated := clone(*rec)
	updated.CreatedAt = stored.CreatedAt
	updated.SessionID = stored.SessionID
	r.recs[rec.ID] = updated
	return nil
}

func (r *MemoryStagingRepository) ListStale(ctx context.Context, statuses []staging.Status, updatedBefore time.Time, limit int) ([]staging.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []staging.Record
	for _, rec := range r.recs {
		if containsStatus(statuses, rec.Status) && rec.UpdatedAt.Before(updatedBefore) {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryStagingRepository) Purge(ctx context.Context, cutoffs PurgeCutoffs) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.recs {
		if purgeable(rec, cutoffs) {
			delete(r.recs, id)
			n++
		}
	}
	return n, nil
}

// Put stores rec as-is, bypassing the version check. Tests use it to seed
// rows with arbitrary timestamps.
func (r *MemoryStagingRepository) Put(rec staging.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.ID] = clone(rec)
}

func (r *MemoryStagingRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

func purgeable(rec staging.Record, c PurgeCutoffs) bool {
	switch rec.Status {
	case staging.StatusFinalized:
		return rec.UpdatedAt.Before(c.FinalizedBefore)
	case staging.StatusExpired, staging.StatusCancelled:
		return rec.UpdatedAt.Before(c.StaleBefore)
	case staging.StatusCleanupFailed:
		return rec.UpdatedAt.Before(c.CleanupFailedBefore)
	}
	return false
}

func containsStatus(set []staging.Status, s staging.Status) bool {
	for _, st := range set {
		if st == s {
			return true
		}
	}
	return false
}

func clone(rec staging.Record) staging.Record {
	files := make([]staging.StagedFile, len(rec.Files))
	copy(files, rec.Files)
	rec.Files = files
	return rec
}

// MemorySessionRepository is a fixed set of known visitor sessions.
type MemorySessionRepository struct {
	mu         sync.RWMutex
	sessions   map[uuid.UUID]session.VisitorSession
	permissive bool
}

func NewMemorySessionRepository(sessions ...session.VisitorSession) *MemorySessionRepository {
	m := &MemorySessionRepository{sessions: make(map[uuid.UUID]session.VisitorSession)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

// NewPermissiveSessionRepository resolves every session id. Only for local
// runs where no identity layer exists.
func NewPermissiveSessionRepository() *MemorySessionRepository {
	m := NewMemorySessionRepository()
	m.permissive = true
	return m
}

func (r *MemorySessionRepository) Add(s session.VisitorSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id uuid.UUID) (session.VisitorSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		if r.permissive && id != uuid.Nil {
			return session.VisitorSession{ID: id}, nil
		}
		return session.VisitorSession{}, archive_errors.ErrNotFound
	}
	return s, nil
}
