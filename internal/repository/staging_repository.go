package repository

import (
	"context"
	"errors"
	"time"

	"literary-archive/internal/domain/staging"
	archive_errors "literary-archive/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresStagingRepository struct {
	db *gorm.DB
}

func NewStagingRepository(db *gorm.DB) StagingRepository {
	return &PostgresStagingRepository{db: db}
}

func (r *PostgresStagingRepository) Create(ctx context.Context, rec *staging.Record) error {
	res := r.db.WithContext(ctx).Create(rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) || isUniqueViolation(res.Error) {
			return archive_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresStagingRepository) GetByID(ctx context.Context, id uuid.UUID) (staging.Record, error) {
	var rec staging.Record
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return staging.Record{}, archive_errors.ErrNotFound
		}
		return staging.Record{}, err
	}
	return rec, nil
}

func (r *PostgresStagingRepository) Update(ctx context.Context, rec *staging.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	next := rec.Version + 1
	res := r.db.WithContext(ctx).
		Model(&staging.Record{}).
		Where("id = ? AND version = ?", rec.ID, rec.Version).
		Updates(map[string]interface{}{
			"status":           rec.Status,
			"files":            rec.Files,
			"file_count":       rec.FileCount,
			"total_bytes":      rec.TotalBytes,
			"expires_at":       rec.ExpiresAt,
			"token_jti":        rec.TokenJTI,
			"cleanup_attempts": rec.CleanupAttempts,
			"last_error":       rec.LastError,
			"version":          next,
			"updated_at":       rec.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&staging.Record{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return archive_errors.ErrNotFound
		}
		return archive_errors.ErrConflict
	}
	rec.Version = next
	return nil
}

func (r *PostgresStagingRepository) ListStale(ctx context.Context, statuses []staging.Status, updatedBefore time.Time, limit int) ([]staging.Record, error) {
	var recs []staging.Record
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statusStrings(statuses), updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *PostgresStagingRepository) Purge(ctx context.Context, cutoffs PurgeCutoffs) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(status = ? AND updated_at < ?) OR (status IN ? AND updated_at < ?) OR (status = ? AND updated_at < ?)",
			string(staging.StatusFinalized), cutoffs.FinalizedBefore,
			[]string{string(staging.StatusExpired), string(staging.StatusCancelled)}, cutoffs.StaleBefore,
			string(staging.StatusCleanupFailed), cutoffs.CleanupFailedBefore,
		).
		Delete(&staging.Record{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func statusStrings(statuses []staging.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
