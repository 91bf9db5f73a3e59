// Package manifest checks client-declared upload manifests and relay-reported
// upload results against the file policy. Checks are fail-fast: the first
// violation found is returned.
package manifest

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	archive_errors "literary-archive/pkg/errors"
)

// Policy bounds what a staging record may hold.
type Policy struct {
	MaxFiles     int
	MaxFileBytes int64
	AllowedMIME  []string
}

// Entry is a file the browser intends to upload.
type Entry struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

// UploadedEntry is a file the relay reports as stored.
type UploadedEntry struct {
	DriveFileID string `json:"drive_file_id"`
	Name        string `json:"name"`
	Mime        string `json:"mime"`
	Size        int64  `json:"size"`
	Receipt     string `json:"receipt"`
}

// NormalizeMIME lower-cases a media type and drops its parameters.
func NormalizeMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(value); err == nil {
		return mt
	}
	return strings.ToLower(value)
}

func (p Policy) AllowsMIME(value string) bool {
	mt := NormalizeMIME(value)
	if mt == "" {
		return false
	}
	for _, allowed := range p.AllowedMIME {
		if strings.EqualFold(allowed, mt) {
			return true
		}
	}
	return false
}

// CheckFile applies the per-file MIME and size rules.
func (p Policy) CheckFile(name, mimeType string, size int64) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if !p.AllowsMIME(mimeType) {
		return fmt.Errorf("mime type %q is not allowed", mimeType)
	}
	if size <= 0 {
		return errors.New("size must be greater than zero")
	}
	if size > p.MaxFileBytes {
		return fmt.Errorf("size %d exceeds the %d byte limit", size, p.MaxFileBytes)
	}
	return nil
}

func (p Policy) checkCount(n int) error {
	if n < 1 {
		return errors.New("at least one file is required")
	}
	if n > p.MaxFiles {
		return fmt.Errorf("at most %d files are allowed, got %d", p.MaxFiles, n)
	}
	return nil
}

// ValidateManifest checks a pre-upload manifest.
func ValidateManifest(entries []Entry, p Policy) error {
	if err := p.checkCount(len(entries)); err != nil {
		return violation(err)
	}
	for i, e := range entries {
		if err := p.CheckFile(e.Name, e.Mime, e.Size); err != nil {
			return violation(fmt.Errorf("file %d: %w", i+1, err))
		}
	}
	return nil
}

// ValidateUploaded checks a post-upload result list.
func ValidateUploaded(entries []UploadedEntry, p Policy) error {
	if err := p.checkCount(len(entries)); err != nil {
		return violation(err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.DriveFileID) == "" {
			return violation(fmt.Errorf("file %d: drive_file_id is required", i+1))
		}
		if err := p.CheckFile(e.Name, e.Mime, e.Size); err != nil {
			return violation(fmt.Errorf("file %d: %w", i+1, err))
		}
		if strings.TrimSpace(e.Receipt) == "" {
			return violation(fmt.Errorf("file %d: receipt is required", i+1))
		}
	}
	return nil
}

func violation(err error) error {
	return fmt.Errorf("%w: %v", archive_errors.ErrPolicyViolation, err)
}

// Message strips the sentinel prefix for display.
func Message(err error) string {
	return strings.TrimPrefix(err.Error(), archive_errors.ErrPolicyViolation.Error()+": ")
}
