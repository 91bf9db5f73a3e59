package httpdto

import "time"

// ManifestEntryDTO describes one file the browser intends to upload.
type ManifestEntryDTO struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

// IssueTokenRequest is used for POST /v1/uploads/token
type IssueTokenRequest struct {
	SessionID      string             `json:"session_id" binding:"required"`
	StagingID      string             `json:"staging_id,omitempty"`
	RecaptchaToken string             `json:"recaptcha_token"`
	FileManifest   []ManifestEntryDTO `json:"file_manifest"`
}

type LimitsDTO struct {
	MaxFiles     int      `json:"max_files"`
	MaxSizeBytes int64    `json:"max_size_bytes"`
	AllowedMIME  []string `json:"allowed_mime"`
}

type IssueTokenResponse struct {
	OK               bool      `json:"ok"`
	StagingID        string    `json:"staging_id"`
	UploadToken      string    `json:"upload_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	StagingExpiresAt time.Time `json:"staging_expires_at"`
	Limits           LimitsDTO `json:"limits"`
}

// UploadedFileDTO is one relay upload result, receipt included.
type UploadedFileDTO struct {
	DriveFileID string `json:"drive_file_id"`
	Name        string `json:"name"`
	Mime        string `json:"mime"`
	Size        int64  `json:"size"`
	Receipt     string `json:"receipt"`
}

// FinalizeRequest is used for POST /v1/uploads/finalize
type FinalizeRequest struct {
	SessionID     string            `json:"session_id" binding:"required"`
	StagingID     string            `json:"staging_id" binding:"required"`
	UploadedFiles []UploadedFileDTO `json:"uploaded_files"`
}

// StagedFileDTO never carries the receipt back to the browser.
type StagedFileDTO struct {
	DriveFileID string    `json:"drive_file_id"`
	Name        string    `json:"name"`
	Mime        string    `json:"mime"`
	Size        int64     `json:"size"`
	ReceivedAt  time.Time `json:"received_at"`
}

type FinalizeResponse struct {
	OK             bool            `json:"ok"`
	StagingID      string          `json:"staging_id"`
	FileCount      int             `json:"file_count"`
	TotalBytes     int64           `json:"total_bytes"`
	Files          []StagedFileDTO `json:"files"`
	ReadyForSubmit bool            `json:"ready_for_submit"`
}

// CancelRequest is used for POST /v1/uploads/cancel
type CancelRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	StagingID string `json:"staging_id" binding:"required"`
}

type DeleteSummaryDTO struct {
	Attempted int    `json:"attempted"`
	Deleted   int    `json:"deleted"`
	NotFound  int    `json:"not_found"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type CancelResponse struct {
	OK            bool             `json:"ok"`
	StagingID     string           `json:"staging_id"`
	Status        string           `json:"status"`
	DeleteSummary DeleteSummaryDTO `json:"delete_summary"`
}
