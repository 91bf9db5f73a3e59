package services

import (
	"context"
	"errors"
	"net/http"

	"literary-archive/internal/domain/staging"
	archive_errors "literary-archive/pkg/errors"

	"go.uber.org/zap"
)

const cancelMaxAttempts = 3

type CancelInput struct {
	SessionID string
	StagingID string
}

// DeleteSummary reports the relay-side outcome of a cancellation. It never
// affects whether the cancellation itself succeeded.
type DeleteSummary struct {
	Attempted int    `json:"attempted"`
	Deleted   int    `json:"deleted"`
	NotFound  int    `json:"not_found"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type CancelResult struct {
	StagingID     string         `json:"staging_id"`
	Status        staging.Status `json:"status"`
	DeleteSummary DeleteSummary  `json:"delete_summary"`
}

// CancelUpload asks the relay to delete every staged file and marks the record
// cancelled whatever the relay answered.
func (s *UploadService) CancelUpload(ctx context.Context, in CancelInput) (CancelResult, error) {
	sessionID, err := parseID(in.SessionID, "session_id")
	if err != nil {
		return CancelResult{}, err
	}
	stagingID, err := parseID(in.StagingID, "staging_id")
	if err != nil {
		return CancelResult{}, err
	}
	if _, err := s.resolveSession(ctx, sessionID); err != nil {
		return CancelResult{}, err
	}

	summary := DeleteSummary{Success: true}
	deleted := make(map[string]struct{})

	for attempt := 1; ; attempt++ {
		rec, err := s.loadOwned(ctx, stagingID, sessionID)
		if err != nil {
			return CancelResult{}, err
		}
		if rec.Status.IsTerminal() {
			return CancelResult{}, archive_errors.New(archive_errors.CodeAlreadyFinalized, http.StatusConflict,
				"staging record is already finalized")
		}

		// On a retry only files that appeared since the last relay call are sent.
		var pending []string
		for _, id := range rec.FileIDs() {
			if _, ok := deleted[id]; !ok {
				pending = append(pending, id)
			}
		}
		if len(pending) > 0 {
			res := s.deleter.Delete(ctx, pending, stagingID.String())
			summary.Attempted += len(pending)
			summary.Deleted += len(res.Deleted)
			summary.NotFound += len(res.NotFound)
			if !res.OK {
				summary.Success = false
				summary.Error = res.Error
			}
			for _, id := range pending {
				deleted[id] = struct{}{}
			}
		}

		if err := rec.Transition(staging.StatusCancelled); err != nil {
			return CancelResult{}, mapWriteError(err)
		}
		rec.CleanupAttempts++
		rec.LastError = summary.Error
		rec.UpdatedAt = s.now()

		err = s.staging.Update(ctx, &rec)
		if err == nil {
			s.log.Info(ctx, "upload cancelled",
				zap.String("staging_id", rec.ID.String()),
				zap.Int("attempted", summary.Attempted),
				zap.Bool("relay_ok", summary.Success),
				zap.Int("cleanup_attempts", rec.CleanupAttempts))
			if !summary.Success {
				s.log.Warn(ctx, "relay delete failed during cancel",
					zap.String("staging_id", rec.ID.String()),
					zap.String("error", summary.Error))
			}
			return CancelResult{
				StagingID:     rec.ID.String(),
				Status:        rec.Status,
				DeleteSummary: summary,
			}, nil
		}
		if !errors.Is(err, archive_errors.ErrConflict) || attempt >= cancelMaxAttempts {
			return CancelResult{}, mapWriteError(err)
		}
		s.log.Warn(ctx, "cancel lost a concurrent update, retrying",
			zap.String("staging_id", stagingID.String()),
			zap.Int("attempt", attempt))
	}
}
