package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"literary-archive/internal/domain/staging"
	"literary-archive/internal/manifest"
	archive_errors "literary-archive/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FinalizeInput struct {
	SessionID string
	StagingID string
	Files     []manifest.UploadedEntry
}

// FileSummary is staged-file metadata without the receipt.
type FileSummary struct {
	DriveFileID string    `json:"drive_file_id"`
	Name        string    `json:"name"`
	Mime        string    `json:"mime"`
	Size        int64     `json:"size"`
	ReceivedAt  time.Time `json:"received_at"`
}

type FinalizeResult struct {
	StagingID      string        `json:"staging_id"`
	FileCount      int           `json:"file_count"`
	TotalBytes     int64         `json:"total_bytes"`
	Files          []FileSummary `json:"files"`
	ReadyForSubmit bool          `json:"ready_for_submit"`
}

// receiptMismatch is a receipt that verified cryptographically but does not
// describe the file or staging record it was presented for.
type receiptMismatch struct {
	index int
	field string
}

func (m receiptMismatch) Error() string {
	return fmt.Sprintf("file %d: receipt %s does not match", m.index+1, m.field)
}

// FinalizeUpload verifies a receipt for every uploaded file and merges the
// files into the staging record. Either all files are accepted or none are.
func (s *UploadService) FinalizeUpload(ctx context.Context, in FinalizeInput) (FinalizeResult, error) {
	if err := manifest.ValidateUploaded(in.Files, s.settings.Policy); err != nil {
		return FinalizeResult{}, archive_errors.PolicyViolation(errors.New(manifest.Message(err)))
	}

	sessionID, err := parseID(in.SessionID, "session_id")
	if err != nil {
		return FinalizeResult{}, err
	}
	stagingID, err := parseID(in.StagingID, "staging_id")
	if err != nil {
		return FinalizeResult{}, err
	}

	now := s.now()
	incoming := make([]staging.StagedFile, 0, len(in.Files))
	for i, f := range in.Files {
		if err := s.checkReceipt(i, f, sessionID, stagingID); err != nil {
			s.log.Warn(ctx, "receipt rejected",
				zap.String("event", "possible_forgery"),
				zap.String("staging_id", stagingID.String()),
				zap.String("drive_file_id", f.DriveFileID),
				zap.Error(err))
			return FinalizeResult{}, archive_errors.Wrap(archive_errors.CodeInvalidReceipt, http.StatusBadRequest, err.Error(), err)
		}
		incoming = append(incoming, staging.StagedFile{
			DriveFileID: f.DriveFileID,
			Name:        f.Name,
			Mime:        manifest.NormalizeMIME(f.Mime),
			Size:        f.Size,
			Receipt:     f.Receipt,
			ReceivedAt:  now,
		})
	}

	if _, err := s.resolveSession(ctx, sessionID); err != nil {
		return FinalizeResult{}, err
	}
	rec, err := s.loadOwned(ctx, stagingID, sessionID)
	if err != nil {
		return FinalizeResult{}, err
	}
	switch rec.Status {
	case staging.StatusFinalized, staging.StatusCancelled, staging.StatusExpired, staging.StatusCleanupFailed:
		return FinalizeResult{}, archive_errors.New(archive_errors.CodeInvalidStatus, http.StatusConflict,
			"staging record in status "+string(rec.Status)+" cannot accept files")
	}
	if rec.IsExpired(now) {
		return FinalizeResult{}, archive_errors.New(archive_errors.CodeExpired, http.StatusGone, "staging record has expired")
	}

	rec.MergeFiles(incoming)

	if rec.FileCount < 1 || rec.FileCount > s.settings.Policy.MaxFiles {
		return FinalizeResult{}, archive_errors.New(archive_errors.CodeMaxFilesExceeded, http.StatusBadRequest,
			fmt.Sprintf("staging record would hold %d files, limit is %d", rec.FileCount, s.settings.Policy.MaxFiles))
	}
	// Files merged earlier are re-checked against the current policy.
	for i, f := range rec.Files {
		if err := s.settings.Policy.CheckFile(f.Name, f.Mime, f.Size); err != nil {
			return FinalizeResult{}, archive_errors.PolicyViolation(fmt.Errorf("staged file %d: %v", i+1, err))
		}
	}

	if err := rec.Transition(staging.StatusUploaded); err != nil {
		return FinalizeResult{}, mapWriteError(err)
	}
	rec.Touch(now, s.settings.StagingTTL)
	rec.LastError = ""

	if err := s.staging.Update(ctx, &rec); err != nil {
		return FinalizeResult{}, mapWriteError(err)
	}

	s.log.Info(ctx, "upload finalized",
		zap.String("staging_id", rec.ID.String()),
		zap.Int("file_count", rec.FileCount),
		zap.Int64("total_bytes", rec.TotalBytes))

	return FinalizeResult{
		StagingID:      rec.ID.String(),
		FileCount:      rec.FileCount,
		TotalBytes:     rec.TotalBytes,
		Files:          summarize(rec.Files),
		ReadyForSubmit: true,
	}, nil
}

func (s *UploadService) checkReceipt(i int, f manifest.UploadedEntry, sessionID, stagingID uuid.UUID) error {
	claims, err := s.codec.VerifyReceipt(f.Receipt)
	if err != nil {
		return fmt.Errorf("file %d: %w", i+1, err)
	}
	if s.settings.RelayIssuer != "" && claims.Issuer != s.settings.RelayIssuer {
		return receiptMismatch{i, "issuer"}
	}
	if claims.JTI == "" {
		return receiptMismatch{i, "jti"}
	}
	if claims.SessionID != sessionID.String() {
		return receiptMismatch{i, "session_id"}
	}
	if claims.StagingID != stagingID.String() {
		return receiptMismatch{i, "staging_id"}
	}
	if claims.DriveFileID != f.DriveFileID {
		return receiptMismatch{i, "drive_file_id"}
	}
	if manifest.NormalizeMIME(claims.Mime) != manifest.NormalizeMIME(f.Mime) {
		return receiptMismatch{i, "mime"}
	}
	if claims.Size != f.Size {
		return receiptMismatch{i, "size"}
	}
	return nil
}

func summarize(files []staging.StagedFile) []FileSummary {
	out := make([]FileSummary, 0, len(files))
	for _, f := range files {
		out = append(out, FileSummary{
			DriveFileID: f.DriveFileID,
			Name:        f.Name,
			Mime:        f.Mime,
			Size:        f.Size,
			ReceivedAt:  f.ReceivedAt,
		})
	}
	return out
}
