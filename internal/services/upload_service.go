package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"literary-archive/internal/captcha"
	"literary-archive/internal/domain/session"
	"literary-archive/internal/domain/staging"
	"literary-archive/internal/manifest"
	"literary-archive/internal/relay"
	"literary-archive/internal/repository"
	"literary-archive/internal/tokens"
	archive_errors "literary-archive/pkg/errors"
	"literary-archive/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileDeleter removes relay-stored files. Implemented by relay.Client and
// storage.Client.
type FileDeleter interface {
	Delete(ctx context.Context, fileIDs []string, stagingID string) relay.DeleteResult
}

type UploadSettings struct {
	Policy      manifest.Policy
	TokenTTL    time.Duration
	StagingTTL  time.Duration
	TokenIssuer string
	RelayIssuer string
	// CaptchaExempt skips CAPTCHA verification (local, dev and CI).
	CaptchaExempt bool
}

// UploadService runs the staged upload protocol: token issuance, receipt
// verification and merge, and cancellation.
type UploadService struct {
	staging  repository.StagingRepository
	sessions repository.SessionRepository
	codec    *tokens.Codec
	captcha  captcha.Verifier
	deleter  FileDeleter
	settings UploadSettings
	log      *logger.Logger
	now      func() time.Time
}

func NewUploadService(
	stagingRepo repository.StagingRepository,
	sessionRepo repository.SessionRepository,
	codec *tokens.Codec,
	verifier captcha.Verifier,
	deleter FileDeleter,
	settings UploadSettings,
	l *logger.Logger,
) *UploadService {
	if l == nil {
		l = logger.NewNop()
	}
	return &UploadService{
		staging:  stagingRepo,
		sessions: sessionRepo,
		codec:    codec,
		captcha:  verifier,
		deleter:  deleter,
		settings: settings,
		log:      l,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *UploadService) WithClock(now func() time.Time) *UploadService {
	cp := *s
	cp.now = now
	return &cp
}

// Limits is the file policy echoed to clients and embedded in upload tokens.
type Limits struct {
	MaxFiles     int      `json:"max_files"`
	MaxSizeBytes int64    `json:"max_size_bytes"`
	AllowedMIME  []string `json:"allowed_mime"`
}

func (s *UploadService) Limits() Limits {
	return Limits{
		MaxFiles:     s.settings.Policy.MaxFiles,
		MaxSizeBytes: s.settings.Policy.MaxFileBytes,
		AllowedMIME:  append([]string(nil), s.settings.Policy.AllowedMIME...),
	}
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, archive_errors.InvalidRequest(field + " must be a UUID")
	}
	return id, nil
}

func (s *UploadService) resolveSession(ctx context.Context, id uuid.UUID) (session.VisitorSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, archive_errors.ErrNotFound) {
			return session.VisitorSession{}, archive_errors.NotFound("session not found")
		}
		return session.VisitorSession{}, err
	}
	return sess, nil
}

// loadOwned fetches a staging record and checks it belongs to sessionID.
func (s *UploadService) loadOwned(ctx context.Context, stagingID, sessionID uuid.UUID) (staging.Record, error) {
	rec, err := s.staging.GetByID(ctx, stagingID)
	if err != nil {
		if errors.Is(err, archive_errors.ErrNotFound) {
			return staging.Record{}, archive_errors.NotFound("staging record not found")
		}
		return staging.Record{}, err
	}
	if !rec.BelongsTo(sessionID) {
		s.log.Warn(ctx, "staging ownership mismatch",
			zap.String("staging_id", stagingID.String()),
			zap.String("session_id", sessionID.String()))
		return staging.Record{}, archive_errors.Forbidden("staging record belongs to another session")
	}
	return rec, nil
}

func mapWriteError(err error) error {
	switch {
	case errors.Is(err, archive_errors.ErrConflict):
		return archive_errors.Conflict("staging record was modified concurrently, retry the request")
	case errors.Is(err, archive_errors.ErrNotFound):
		return archive_errors.NotFound("staging record not found")
	case errors.Is(err, archive_errors.ErrInvalidTransition):
		return archive_errors.Wrap(archive_errors.CodeInvalidStatus, http.StatusConflict, err.Error(), err)
	}
	return err
}
