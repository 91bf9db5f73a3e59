package services

import (
	"context"
	"sync"
	"time"

	"literary-archive/internal/domain/staging"
	"literary-archive/internal/repository"
	"literary-archive/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type CleanupSettings struct {
	StaleRetention     time.Duration
	FinalizedRetention time.Duration
	BatchSize          int
	Concurrency        int
}

type CleanupMetrics struct {
	Scanned       int   `json:"scanned"`
	Expired       int   `json:"expired"`
	CleanupFailed int   `json:"cleanup_failed"`
	DeletedFiles  int   `json:"deleted_files"`
	DeletedRows   int64 `json:"deleted_rows"`
	Failed        int   `json:"failed"`
}

type CleanupCutoffs struct {
	Stale         time.Time `json:"stale"`
	Finalized     time.Time `json:"finalized"`
	CleanupFailed time.Time `json:"cleanup_failed"`
}

type CleanupReport struct {
	Metrics CleanupMetrics `json:"metrics"`
	Cutoffs CleanupCutoffs `json:"cutoffs"`
}

// CleanupService reclaims abandoned staging records and purges old rows.
type CleanupService struct {
	staging  repository.StagingRepository
	deleter  FileDeleter
	settings CleanupSettings
	log      *logger.Logger
	now      func() time.Time
}

func NewCleanupService(stagingRepo repository.StagingRepository, deleter FileDeleter, settings CleanupSettings, l *logger.Logger) *CleanupService {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 500
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &CleanupService{
		staging:  stagingRepo,
		deleter:  deleter,
		settings: settings,
		log:      l,
		now:      time.Now,
	}
}

func (s *CleanupService) WithClock(now func() time.Time) *CleanupService {
	cp := *s
	cp.now = now
	return &cp
}

// Run executes the reclaim pass then the purge pass. Per-row failures are
// counted in the report; only store errors abort the run.
func (s *CleanupService) Run(ctx context.Context) (CleanupReport, error) {
	now := s.now()
	cutoffs := CleanupCutoffs{
		Stale:         now.Add(-s.settings.StaleRetention),
		Finalized:     now.Add(-s.settings.FinalizedRetention),
		CleanupFailed: now.Add(-s.settings.FinalizedRetention),
	}
	report := CleanupReport{Cutoffs: cutoffs}

	// cleanup_failed is not in ReclaimableStatuses, so a failed reclaim is
	// never retried; the purge pass drops the row later.
	recs, err := s.staging.ListStale(ctx, staging.ReclaimableStatuses, cutoffs.Stale, s.settings.BatchSize)
	if err != nil {
		return report, err
	}
	report.Metrics.Scanned = len(recs)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Concurrency)
	for i := range recs {
		rec := recs[i]
		g.Go(func() error {
			outcome := s.reclaim(gctx, &rec)
			mu.Lock()
			defer mu.Unlock()
			switch outcome.status {
			case staging.StatusExpired:
				report.Metrics.Expired++
			case staging.StatusCleanupFailed:
				report.Metrics.CleanupFailed++
			}
			report.Metrics.DeletedFiles += outcome.deletedFiles
			if outcome.failed {
				report.Metrics.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	deleted, err := s.staging.Purge(ctx, repository.PurgeCutoffs{
		FinalizedBefore:     cutoffs.Finalized,
		StaleBefore:         cutoffs.Stale,
		CleanupFailedBefore: cutoffs.CleanupFailed,
	})
	if err != nil {
		return report, err
	}
	report.Metrics.DeletedRows = deleted

	s.log.Info(ctx, "cleanup finished",
		zap.Int("scanned", report.Metrics.Scanned),
		zap.Int("expired", report.Metrics.Expired),
		zap.Int("cleanup_failed", report.Metrics.CleanupFailed),
		zap.Int("deleted_files", report.Metrics.DeletedFiles),
		zap.Int64("deleted_rows", report.Metrics.DeletedRows),
		zap.Int("failed", report.Metrics.Failed))
	return report, nil
}

type reclaimOutcome struct {
	status       staging.Status
	deletedFiles int
	failed       bool
}

func (s *CleanupService) reclaim(ctx context.Context, rec *staging.Record) reclaimOutcome {
	res := s.deleter.Delete(ctx, rec.FileIDs(), rec.ID.String())
	// A sweep that ran out of time leaves the row reclaimable for the next run.
	if err := ctx.Err(); err != nil {
		s.log.Warn(ctx, "reclaim interrupted",
			zap.String("staging_id", rec.ID.String()),
			zap.Error(err))
		return reclaimOutcome{deletedFiles: len(res.Deleted), failed: true}
	}

	next := staging.StatusExpired
	rec.LastError = ""
	if !res.OK {
		next = staging.StatusCleanupFailed
		rec.LastError = res.Error
	}
	if err := rec.Transition(next); err != nil {
		s.log.Error(ctx, "reclaim transition rejected", zap.String("staging_id", rec.ID.String()), zap.Error(err))
		return reclaimOutcome{failed: true}
	}
	rec.CleanupAttempts++
	rec.UpdatedAt = s.now()

	if err := s.staging.Update(ctx, rec); err != nil {
		s.log.Warn(ctx, "reclaim update failed",
			zap.String("staging_id", rec.ID.String()),
			zap.Error(err))
		return reclaimOutcome{deletedFiles: len(res.Deleted), failed: true}
	}
	if !res.OK {
		s.log.Warn(ctx, "reclaim relay delete failed",
			zap.String("staging_id", rec.ID.String()),
			zap.String("error", res.Error))
	}
	return reclaimOutcome{status: next, deletedFiles: len(res.Deleted)}
}
