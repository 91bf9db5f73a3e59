package httpdto

import "time"

type CleanupMetricsDTO struct {
	Scanned       int   `json:"scanned"`
	Expired       int   `json:"expired"`
	CleanupFailed int   `json:"cleanup_failed"`
	DeletedFiles  int   `json:"deleted_files"`
	DeletedRows   int64 `json:"deleted_rows"`
	Failed        int   `json:"failed"`
}

type CleanupCutoffsDTO struct {
	Stale         time.Time `json:"stale"`
	Finalized     time.Time `json:"finalized"`
	CleanupFailed time.Time `json:"cleanup_failed"`
}

// CleanupResponse is returned by POST /v1/internal/cleanup
type CleanupResponse struct {
	OK      bool              `json:"ok"`
	Metrics CleanupMetricsDTO `json:"metrics"`
	Cutoffs CleanupCutoffsDTO `json:"cutoffs"`
}
