package staging

import (
	"database/sql/driver"
	"fmt"

	archive_errors "literary-archive/pkg/errors"
)

type Status string

const (
	StatusIssued        Status = "issued"
	StatusUploading     Status = "uploading"
	StatusUploaded      Status = "uploaded"
	StatusFinalized     Status = "finalized"
	StatusCancelled     Status = "cancelled"
	StatusExpired       Status = "expired"
	StatusCleanupFailed Status = "cleanup_failed"
)

var allStatuses = []Status{
	StatusIssued,
	StatusUploading,
	StatusUploaded,
	StatusFinalized,
	StatusCancelled,
	StatusExpired,
	StatusCleanupFailed,
}

var transitions = map[Status][]Status{
	StatusIssued:        {StatusUploading, StatusUploaded, StatusCancelled, StatusExpired, StatusCleanupFailed},
	StatusUploading:     {StatusUploading, StatusUploaded, StatusCancelled, StatusExpired, StatusCleanupFailed},
	StatusUploaded:      {StatusUploading, StatusUploaded, StatusFinalized, StatusCancelled, StatusExpired, StatusCleanupFailed},
	StatusCancelled:     {StatusCancelled, StatusExpired, StatusCleanupFailed},
	StatusExpired:       {StatusCancelled},
	StatusCleanupFailed: {StatusCancelled},
	StatusFinalized:     {},
}

// ReusableStatuses may receive a fresh upload token.
var ReusableStatuses = []Status{StatusIssued, StatusUploading, StatusUploaded}

// ReclaimableStatuses are picked up by the cleanup reclaim pass once stale.
// StatusCleanupFailed is intentionally absent.
var ReclaimableStatuses = []Status{StatusIssued, StatusUploading, StatusUploaded, StatusCancelled}

func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown staging status %q", s)
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsReusable() bool {
	return s.in(ReusableStatuses)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusFinalized
}

func (s Status) in(set []Status) bool {
	for _, st := range set {
		if st == s {
			return true
		}
	}
	return false
}

// Transition moves the record to next or returns ErrInvalidTransition.
func (r *Record) Transition(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", archive_errors.ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// Scan rejects status strings outside the enumeration when loading rows.
func (s *Status) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported status type %T", value)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) Value() (driver.Value, error) {
	if _, err := ParseStatus(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}
