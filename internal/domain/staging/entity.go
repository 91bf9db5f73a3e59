package staging

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StagedFile is one file the relay has confirmed storing.
type StagedFile struct {
	DriveFileID string    `json:"drive_file_id"`
	Name        string    `json:"name"`
	Mime        string    `json:"mime"`
	Size        int64     `json:"size"`
	Receipt     string    `json:"receipt"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Record represents upload_staging
type Record struct {
	ID              uuid.UUID                       `gorm:"type:uuid;primaryKey"`
	SessionID       uuid.UUID                       `gorm:"type:uuid;not null;index"`
	CollaboratorID  uuid.NullUUID                   `gorm:"type:uuid"`
	Status          Status                          `gorm:"type:varchar(32);not null;index"`
	Files           datatypes.JSONSlice[StagedFile] `gorm:"type:jsonb;not null"`
	FileCount       int                             `gorm:"not null;default:0"`
	TotalBytes      int64                           `gorm:"not null;default:0"`
	ExpiresAt       time.Time                       `gorm:"not null"`
	TokenJTI        string                          `gorm:"column:token_jti;type:varchar(64)"`
	CleanupAttempts int                             `gorm:"not null;default:0"`
	LastError       string                          `gorm:"type:text"`
	Version         int64                           `gorm:"not null;default:0"`
	CreatedAt       time.Time                       `gorm:"not null"`
	UpdatedAt       time.Time                       `gorm:"not null;index"`
}

func (Record) TableName() string {
	return "upload_staging"
}

// New returns an issued record bound to sessionID.
func New(sessionID uuid.UUID, collaboratorID uuid.NullUUID, now time.Time, ttl time.Duration) *Record {
	return &Record{
		ID:             uuid.New(),
		SessionID:      sessionID,
		CollaboratorID: collaboratorID,
		Status:         StatusIssued,
		Files:          datatypes.JSONSlice[StagedFile]{},
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *Record) BelongsTo(sessionID uuid.UUID) bool {
	return r.SessionID == sessionID
}

func (r *Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// FileIDs returns the drive ids of every staged file, in order.
func (r *Record) FileIDs() []string {
	ids := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		ids = append(ids, f.DriveFileID)
	}
	return ids
}

// MergeFiles adds incoming files keyed by DriveFileID. An incoming file
// replaces an existing one with the same id in place; new ids are appended.
func (r *Record) MergeFiles(incoming []StagedFile) {
	merged := make([]StagedFile, 0, len(r.Files)+len(incoming))
	index := make(map[string]int, len(r.Files)+len(incoming))
	for _, f := range r.Files {
		if i, ok := index[f.DriveFileID]; ok {
			merged[i] = f
			continue
		}
		index[f.DriveFileID] = len(merged)
		merged = append(merged, f)
	}
	for _, f := range incoming {
		if i, ok := index[f.DriveFileID]; ok {
			merged[i] = f
			continue
		}
		index[f.DriveFileID] = len(merged)
		merged = append(merged, f)
	}
	r.Files = merged
	r.recount()
}

func (r *Record) recount() {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	r.FileCount = len(r.Files)
	r.TotalBytes = total
}

// Touch refreshes the staging window.
func (r *Record) Touch(now time.Time, ttl time.Duration) {
	r.ExpiresAt = now.Add(ttl)
	r.UpdatedAt = now
}
