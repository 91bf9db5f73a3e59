package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"literary-archive/internal/captcha"
	"literary-archive/internal/domain/staging"
	"literary-archive/internal/manifest"
	"literary-archive/internal/tokens"
	archive_errors "literary-archive/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type IssueTokenInput struct {
	SessionID    string
	StagingID    string
	CaptchaToken string
	RemoteIP     string
	Manifest     []manifest.Entry
}

type IssueTokenResult struct {
	StagingID        string    `json:"staging_id"`
	UploadToken      string    `json:"upload_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	StagingExpiresAt time.Time `json:"staging_expires_at"`
	Limits           Limits    `json:"limits"`
}

// IssueToken creates or reuses a staging record and mints a short-lived upload
// token for it. Nothing is sent to the relay.
func (s *UploadService) IssueToken(ctx context.Context, in IssueTokenInput) (IssueTokenResult, error) {
	if err := manifest.ValidateManifest(in.Manifest, s.settings.Policy); err != nil {
		return IssueTokenResult{}, archive_errors.PolicyViolation(errors.New(manifest.Message(err)))
	}

	if err := s.verifyCaptcha(ctx, in.CaptchaToken, in.RemoteIP); err != nil {
		return IssueTokenResult{}, err
	}

	sessionID, err := parseID(in.SessionID, "session_id")
	if err != nil {
		return IssueTokenResult{}, err
	}
	sess, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return IssueTokenResult{}, err
	}

	now := s.now()
	var rec staging.Record
	isNew := in.StagingID == ""
	if isNew {
		rec = *staging.New(sessionID, sess.CollaboratorID, now, s.settings.StagingTTL)
	} else {
		stagingID, err := parseID(in.StagingID, "staging_id")
		if err != nil {
			return IssueTokenResult{}, err
		}
		rec, err = s.loadOwned(ctx, stagingID, sessionID)
		if err != nil {
			return IssueTokenResult{}, err
		}
		if rec.IsExpired(now) {
			return IssueTokenResult{}, archive_errors.New(archive_errors.CodeExpired, http.StatusGone, "staging record has expired")
		}
		if !rec.Status.IsReusable() {
			return IssueTokenResult{}, archive_errors.New(archive_errors.CodeNotReusable, http.StatusConflict,
				"staging record in status "+string(rec.Status)+" cannot be reused")
		}
	}

	if rec.FileCount+len(in.Manifest) > s.settings.Policy.MaxFiles {
		return IssueTokenResult{}, archive_errors.New(archive_errors.CodeMaxFilesExceeded, http.StatusBadRequest,
			"staging record would exceed the file limit")
	}

	// Rotate: one token in flight per record.
	if err := rec.Transition(staging.StatusUploading); err != nil {
		return IssueTokenResult{}, mapWriteError(err)
	}
	rec.TokenJTI = uuid.NewString()
	rec.Touch(now, s.settings.StagingTTL)
	rec.LastError = ""

	tokenExpiresAt := now.Add(s.settings.TokenTTL)
	limits := s.Limits()
	token, err := s.codec.SignUpload(tokens.UploadClaims{
		Issuer:           s.settings.TokenIssuer,
		SessionID:        sessionID.String(),
		StagingID:        rec.ID.String(),
		JTI:              rec.TokenJTI,
		IssuedAt:         now.Unix(),
		ExpiresAt:        tokenExpiresAt.Unix(),
		StagingExpiresAt: rec.ExpiresAt.Unix(),
		MaxFiles:         limits.MaxFiles,
		MaxSizeBytes:     limits.MaxSizeBytes,
		AllowedMIME:      limits.AllowedMIME,
	})
	if err != nil {
		return IssueTokenResult{}, err
	}

	if isNew {
		err = s.staging.Create(ctx, &rec)
	} else {
		err = s.staging.Update(ctx, &rec)
	}
	if err != nil {
		return IssueTokenResult{}, mapWriteError(err)
	}

	s.log.Info(ctx, "upload token issued",
		zap.String("staging_id", rec.ID.String()),
		zap.Bool("new_staging", isNew),
		zap.Int("manifest_files", len(in.Manifest)),
		zap.Int("existing_files", rec.FileCount))

	return IssueTokenResult{
		StagingID:        rec.ID.String(),
		UploadToken:      token,
		ExpiresAt:        tokenExpiresAt,
		StagingExpiresAt: rec.ExpiresAt,
		Limits:           limits,
	}, nil
}

func (s *UploadService) verifyCaptcha(ctx context.Context, token, remoteIP string) error {
	if s.settings.CaptchaExempt {
		return nil
	}
	if s.captcha == nil {
		return archive_errors.Misconfigured("captcha verification is not configured")
	}
	err := s.captcha.Verify(ctx, token, remoteIP)
	if err == nil {
		return nil
	}
	if errors.Is(err, captcha.ErrRejected) {
		return archive_errors.Wrap(archive_errors.CodeCaptchaFailed, http.StatusBadRequest, err.Error(), err)
	}
	s.log.Error(ctx, "captcha verifier failed", zap.Error(err))
	return archive_errors.Wrap(archive_errors.CodeCaptchaFailed, http.StatusBadGateway, "captcha verification unavailable", err)
}
