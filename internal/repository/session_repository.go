package repository

import (
	"context"
	"errors"

	"literary-archive/internal/domain/session"
	archive_errors "literary-archive/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresSessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (session.VisitorSession, error) {
	var s session.VisitorSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return session.VisitorSession{}, archive_errors.ErrNotFound
		}
		return session.VisitorSession{}, err
	}
	return s, nil
}
