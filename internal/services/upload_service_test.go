package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"literary-archive/internal/captcha"
	"literary-archive/internal/domain/session"
	"literary-archive/internal/domain/staging"
	"literary-archive/internal/manifest"
	"literary-archive/internal/relay"
	"literary-archive/internal/repository"
	"literary-archive/internal/tokens"
	archive_errors "literary-archive/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret      = "test-signing-secret"
	testRelayIssuer = "relay.test"
)

type fakeDeleter struct {
	mu     sync.Mutex
	calls  [][]string
	result func(ids []string) relay.DeleteResult
}

func (f *fakeDeleter) Delete(ctx context.Context, fileIDs []string, stagingID string) relay.DeleteResult {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), fileIDs...))
	f.mu.Unlock()
	if f.result != nil {
		return f.result(fileIDs)
	}
	return relay.DeleteResult{OK: true, Deleted: fileIDs}
}

func (f *fakeDeleter) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeVerifier struct {
	err error
}

func (f fakeVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	return f.err
}

type fixture struct {
	svc      *UploadService
	repo     *repository.MemoryStagingRepository
	deleter  *fakeDeleter
	codec    *tokens.Codec
	session  uuid.UUID
	settings UploadSettings
}

func testPolicy() manifest.Policy {
	return manifest.Policy{
		MaxFiles:     3,
		MaxFileBytes: 1 << 20,
		AllowedMIME:  []string{"application/pdf", "image/jpeg", "image/png"},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := tokens.NewCodec(testSecret)
	require.NoError(t, err)

	sessionID := uuid.New()
	settings := UploadSettings{
		Policy:        testPolicy(),
		TokenTTL:      10 * time.Minute,
		StagingTTL:    24 * time.Hour,
		TokenIssuer:   "archive.test",
		RelayIssuer:   testRelayIssuer,
		CaptchaExempt: true,
	}
	f := &fixture{
		repo:     repository.NewMemoryStagingRepository(),
		deleter:  &fakeDeleter{},
		codec:    codec,
		session:  sessionID,
		settings: settings,
	}
	sessions := repository.NewMemorySessionRepository(session.VisitorSession{ID: sessionID})
	f.svc = NewUploadService(f.repo, sessions, codec, nil, f.deleter, settings, nil)
	return f
}

func (f *fixture) receipt(t *testing.T, stagingID, driveID, mimeType string, size int64) string {
	t.Helper()
	now := time.Now()
	token, err := f.codec.Sign(tokens.ReceiptClaims{
		Issuer:      testRelayIssuer,
		Type:        tokens.TypeReceipt,
		SessionID:   f.session.String(),
		StagingID:   stagingID,
		JTI:         uuid.NewString(),
		DriveFileID: driveID,
		Name:        driveID + ".pdf",
		Mime:        mimeType,
		Size:        size,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return token
}

func (f *fixture) uploaded(t *testing.T, stagingID, driveID string, size int64) manifest.UploadedEntry {
	return manifest.UploadedEntry{
		DriveFileID: driveID,
		Name:        driveID + ".pdf",
		Mime:        "application/pdf",
		Size:        size,
		Receipt:     f.receipt(t, stagingID, driveID, "application/pdf", size),
	}
}

func (f *fixture) issue(t *testing.T, stagingID string) IssueTokenResult {
	t.Helper()
	res, err := f.svc.IssueToken(context.Background(), IssueTokenInput{
		SessionID: f.session.String(),
		StagingID: stagingID,
		Manifest:  []manifest.Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1000}},
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) stored(t *testing.T, id string) staging.Record {
	t.Helper()
	rec, err := f.repo.GetByID(context.Background(), uuid.MustParse(id))
	require.NoError(t, err)
	return rec
}

func flipByte(s string, i int) string {
	b := []byte(s)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, archive_errors.CodeOf(err), "error: %v", err)
}

func TestIssueTokenCreatesStagingAndEmbedsPolicy(t *testing.T) {
	f := newFixture(t)
	res := f.issue(t, "")

	rec := f.stored(t, res.StagingID)
	assert.Equal(t, staging.StatusUploading, rec.Status)
	assert.Equal(t, f.session, rec.SessionID)
	assert.NotEmpty(t, rec.TokenJTI)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), rec.ExpiresAt, time.Minute)

	claims, err := f.codec.VerifyUpload(res.UploadToken)
	require.NoError(t, err)
	assert.Equal(t, res.StagingID, claims.StagingID)
	assert.Equal(t, rec.TokenJTI, claims.JTI)
	assert.Equal(t, "archive.test", claims.Issuer)
	assert.Equal(t, 3, claims.MaxFiles)
	assert.Equal(t, int64(1<<20), claims.MaxSizeBytes)
	assert.Equal(t, testPolicy().AllowedMIME, claims.AllowedMIME)
	assert.Equal(t, 3, res.Limits.MaxFiles)
}

func TestIssueTokenRejectsOversizedManifestBeforeWriting(t *testing.T) {
	f := newFixture(t)
	entries := make([]manifest.Entry, 4)
	for i := range entries {
		entries[i] = manifest.Entry{Name: "a.pdf", Mime: "application/pdf", Size: 10}
	}

	_, err := f.svc.IssueToken(context.Background(), IssueTokenInput{SessionID: f.session.String(), Manifest: entries})
	assertCode(t, err, archive_errors.CodePolicyViolation)
	assert.Equal(t, 0, f.repo.Len())
}

func TestIssueTokenRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.IssueToken(ctx, IssueTokenInput{
			SessionID: uuid.NewString(),
			Manifest:  []manifest.Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1}},
		})
		assertCode(t, err, archive_errors.CodeNotFound)
	})

	t.Run("malformed session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.IssueToken(ctx, IssueTokenInput{
			SessionID: "not-a-uuid",
			Manifest:  []manifest.Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1}},
		})
		assertCode(t, err, archive_errors.CodeInvalidRequest)
	})

	t.Run("staging owned by another session", func(t *testing.T) {
		f := newFixture(t)
		other := staging.New(uuid.New(), uuid.NullUUID{}, time.Now(), time.Hour)
		f.repo.Put(*other)
		_, err := f.svc.IssueToken(ctx, IssueTokenInput{
			SessionID: f.session.String(),
			StagingID: other.ID.String(),
			Manifest:  []manifest.Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1}},
		})
		assertCode(t, err, archive_errors.CodeForbidden)
	})

	t.Run("expired staging", func(t *testing.T) {
		f := newFixture(t)
		rec := staging.New(f.session, uuid.NullUUID{}, time.Now().Add(-2*time.Hour), time.Hour)
		f.repo.Put(*rec)
		_, err := f.svc.IssueToken(ctx, IssueTokenInput{
			SessionID: f.session.String(),
			StagingID: rec.ID.String(),
			Manifest:  []manifest.Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1}},
		})
		assertCode(t, err, archive_errors.CodeExpired)
	})

	t.Run("finalized staging", func(t *testing.T) {
		f := newFixture(t)
		rec := staging.New(f.session, uuid.NullUUID{}, time.Now(), time.Hour)
		rec.Status = staging.StatusFinalized
		f.repo.Put(*rec)
		_, err := f.svc.IssueToken(ctx, IssueTokenInput{
			SessionID: f.session.String(),
			StagingID: rec.ID.String(),
			Manifest:  []manifest.Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1}},
		})
		assertCode(t, err, archive_errors.CodeNotReusable)
	})

	t.Run("existing files plus manifest over limit", func(t *testing.T) {
		f := newFixture(t)
		rec := staging.New(f.session, uuid.NullUUID{}, time.Now(), time.Hour)
		rec.Status = staging.StatusUploaded
		rec.MergeFiles([]staging.StagedFile{{DriveFileID: "x", Size: 1}, {DriveFileID: "y", Size: 1}, {DriveFileID: "z", Size: 1}})
		f.repo.Put(*rec)
		_, err := f.svc.IssueToken(ctx, IssueTokenInput{
			SessionID: f.session.String(),
			StagingID: rec.ID.String(),
			Manifest:  []manifest.Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1}},
		})
		assertCode(t, err, archive_errors.CodeMaxFilesExceeded)
		assert.Equal(t, staging.StatusUploaded, f.stored(t, rec.ID.String()).Status)
	})
}

func TestIssueTokenCaptcha(t *testing.T) {
	ctx := context.Background()
	input := func(f *fixture) IssueTokenInput {
		return IssueTokenInput{
			SessionID:    f.session.String(),
			CaptchaToken: "token",
			Manifest:     []manifest.Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1}},
		}
	}
	build := func(t *testing.T, v captcha.Verifier) *fixture {
		f := newFixture(t)
		settings := f.settings
		settings.CaptchaExempt = false
		sessions := repository.NewMemorySessionRepository(session.VisitorSession{ID: f.session})
		f.svc = NewUploadService(f.repo, sessions, f.codec, v, f.deleter, settings, nil)
		return f
	}

	f := build(t, fakeVerifier{err: captcha.ErrRejected})
	_, err := f.svc.IssueToken(ctx, input(f))
	assertCode(t, err, archive_errors.CodeCaptchaFailed)
	assert.Equal(t, 0, f.repo.Len())

	f = build(t, fakeVerifier{err: errors.New("dial tcp: timeout")})
	_, err = f.svc.IssueToken(ctx, input(f))
	assertCode(t, err, archive_errors.CodeCaptchaFailed)

	f = build(t, nil)
	_, err = f.svc.IssueToken(ctx, input(f))
	assertCode(t, err, archive_errors.CodeMisconfiguration)

	f = build(t, fakeVerifier{})
	_, err = f.svc.IssueToken(ctx, input(f))
	assert.NoError(t, err)
}

func TestIssueFinalizeRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "")

	res, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
		SessionID: f.session.String(),
		StagingID: issued.StagingID,
		Files:     []manifest.UploadedEntry{f.uploaded(t, issued.StagingID, "drive-a", 1000)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)
	assert.Equal(t, int64(1000), res.TotalBytes)
	assert.True(t, res.ReadyForSubmit)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "drive-a", res.Files[0].DriveFileID)

	rec := f.stored(t, issued.StagingID)
	assert.Equal(t, staging.StatusUploaded, rec.Status)
	assert.Equal(t, 1, rec.FileCount)
	assert.Equal(t, int64(1000), rec.TotalBytes)
	assert.NotEmpty(t, rec.Files[0].Receipt)
}

func TestReissueKeepsFilesAndRotatesJTI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.issue(t, "")
	_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
		SessionID: f.session.String(),
		StagingID: first.StagingID,
		Files:     []manifest.UploadedEntry{f.uploaded(t, first.StagingID, "drive-a", 1000)},
	})
	require.NoError(t, err)
	before := f.stored(t, first.StagingID)

	second := f.issue(t, first.StagingID)
	assert.Equal(t, first.StagingID, second.StagingID)

	after := f.stored(t, first.StagingID)
	assert.Equal(t, staging.StatusUploading, after.Status)
	assert.NotEqual(t, before.TokenJTI, after.TokenJTI)
	assert.Equal(t, before.Files, after.Files)
	assert.Equal(t, 1, after.FileCount)
}

func TestFinalizeIsIdempotentOnDriveFileID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "")
	file := f.uploaded(t, issued.StagingID, "drive-a", 1000)

	res, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
		SessionID: f.session.String(),
		StagingID: issued.StagingID,
		Files:     []manifest.UploadedEntry{file, file},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)

	res, err = f.svc.FinalizeUpload(ctx, FinalizeInput{
		SessionID: f.session.String(),
		StagingID: issued.StagingID,
		Files:     []manifest.UploadedEntry{file},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)
	assert.Equal(t, int64(1000), res.TotalBytes)
}

func TestFinalizeRejectsBadReceipts(t *testing.T) {
	ctx := context.Background()

	t.Run("receipt for another staging record", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, "")
		file := f.uploaded(t, uuid.NewString(), "drive-a", 1000)
		_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
			SessionID: f.session.String(),
			StagingID: issued.StagingID,
			Files:     []manifest.UploadedEntry{file},
		})
		assertCode(t, err, archive_errors.CodeInvalidReceipt)
		assert.Equal(t, 0, f.stored(t, issued.StagingID).FileCount)
	})

	t.Run("size differs from receipt", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, "")
		file := f.uploaded(t, issued.StagingID, "drive-a", 1000)
		file.Size = 999
		_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
			SessionID: f.session.String(),
			StagingID: issued.StagingID,
			Files:     []manifest.UploadedEntry{file},
		})
		assertCode(t, err, archive_errors.CodeInvalidReceipt)
	})

	t.Run("tampered receipt", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, "")
		file := f.uploaded(t, issued.StagingID, "drive-a", 1000)
		file.Receipt = flipByte(file.Receipt, 4)
		_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
			SessionID: f.session.String(),
			StagingID: issued.StagingID,
			Files:     []manifest.UploadedEntry{file},
		})
		assertCode(t, err, archive_errors.CodeInvalidReceipt)
	})

	t.Run("one bad receipt rejects the whole batch", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, "")
		good := f.uploaded(t, issued.StagingID, "drive-a", 1000)
		bad := f.uploaded(t, issued.StagingID, "drive-b", 1000)
		bad.DriveFileID = "drive-c"
		_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
			SessionID: f.session.String(),
			StagingID: issued.StagingID,
			Files:     []manifest.UploadedEntry{good, bad},
		})
		assertCode(t, err, archive_errors.CodeInvalidReceipt)
		assert.Equal(t, 0, f.stored(t, issued.StagingID).FileCount)
	})

	t.Run("upload token presented as receipt", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, "")
		file := f.uploaded(t, issued.StagingID, "drive-a", 1000)
		file.Receipt = issued.UploadToken
		_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
			SessionID: f.session.String(),
			StagingID: issued.StagingID,
			Files:     []manifest.UploadedEntry{file},
		})
		assertCode(t, err, archive_errors.CodeInvalidReceipt)
	})
}

func TestFinalizeStatusChecks(t *testing.T) {
	ctx := context.Background()
	for _, st := range []staging.Status{staging.StatusFinalized, staging.StatusCancelled, staging.StatusExpired, staging.StatusCleanupFailed} {
		t.Run(string(st), func(t *testing.T) {
			f := newFixture(t)
			rec := staging.New(f.session, uuid.NullUUID{}, time.Now(), time.Hour)
			rec.Status = st
			f.repo.Put(*rec)
			_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
				SessionID: f.session.String(),
				StagingID: rec.ID.String(),
				Files:     []manifest.UploadedEntry{f.uploaded(t, rec.ID.String(), "drive-a", 10)},
			})
			assertCode(t, err, archive_errors.CodeInvalidStatus)
		})
	}

	t.Run("past expiry", func(t *testing.T) {
		f := newFixture(t)
		rec := staging.New(f.session, uuid.NullUUID{}, time.Now().Add(-2*time.Hour), time.Hour)
		rec.Status = staging.StatusUploading
		f.repo.Put(*rec)
		_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
			SessionID: f.session.String(),
			StagingID: rec.ID.String(),
			Files:     []manifest.UploadedEntry{f.uploaded(t, rec.ID.String(), "drive-a", 10)},
		})
		assertCode(t, err, archive_errors.CodeExpired)
	})
}

func TestFinalizeMergeRespectsFileLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "")
	id := issued.StagingID

	_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
		SessionID: f.session.String(),
		StagingID: id,
		Files: []manifest.UploadedEntry{
			f.uploaded(t, id, "a", 1), f.uploaded(t, id, "b", 1), f.uploaded(t, id, "c", 1),
		},
	})
	require.NoError(t, err)

	_, err = f.svc.FinalizeUpload(ctx, FinalizeInput{
		SessionID: f.session.String(),
		StagingID: id,
		Files:     []manifest.UploadedEntry{f.uploaded(t, id, "d", 1)},
	})
	assertCode(t, err, archive_errors.CodeMaxFilesExceeded)
	assert.Equal(t, 3, f.stored(t, id).FileCount)
}

func TestCancelUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes files and cancels", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, "")
		_, err := f.svc.FinalizeUpload(ctx, FinalizeInput{
			SessionID: f.session.String(),
			StagingID: issued.StagingID,
			Files:     []manifest.UploadedEntry{f.uploaded(t, issued.StagingID, "drive-a", 10)},
		})
		require.NoError(t, err)

		res, err := f.svc.CancelUpload(ctx, CancelInput{SessionID: f.session.String(), StagingID: issued.StagingID})
		require.NoError(t, err)
		assert.Equal(t, staging.StatusCancelled, res.Status)
		assert.Equal(t, DeleteSummary{Attempted: 1, Deleted: 1, Success: true}, res.DeleteSummary)
		assert.Equal(t, [][]string{{"drive-a"}}, f.deleter.Calls())

		rec := f.stored(t, issued.StagingID)
		assert.Equal(t, staging.StatusCancelled, rec.Status)
		assert.Equal(t, 1, rec.CleanupAttempts)
	})

	t.Run("relay failure still cancels", func(t *testing.T) {
		f := newFixture(t)
		f.deleter.result = func([]string) relay.DeleteResult {
			return relay.DeleteResult{Error: "relay returned 503"}
		}
		rec := staging.New(f.session, uuid.NullUUID{}, time.Now(), time.Hour)
		rec.Status = staging.StatusUploaded
		rec.MergeFiles([]staging.StagedFile{{DriveFileID: "drive-a", Size: 10}})
		f.repo.Put(*rec)

		res, err := f.svc.CancelUpload(ctx, CancelInput{SessionID: f.session.String(), StagingID: rec.ID.String()})
		require.NoError(t, err)
		assert.False(t, res.DeleteSummary.Success)
		assert.Equal(t, "relay returned 503", res.DeleteSummary.Error)

		stored := f.stored(t, rec.ID.String())
		assert.Equal(t, staging.StatusCancelled, stored.Status)
		assert.Equal(t, "relay returned 503", stored.LastError)
		assert.Equal(t, 1, stored.CleanupAttempts)
	})

	t.Run("finalized is rejected unchanged", func(t *testing.T) {
		f := newFixture(t)
		rec := staging.New(f.session, uuid.NullUUID{}, time.Now(), time.Hour)
		rec.Status = staging.StatusFinalized
		rec.MergeFiles([]staging.StagedFile{{DriveFileID: "drive-a", Size: 10}})
		f.repo.Put(*rec)

		_, err := f.svc.CancelUpload(ctx, CancelInput{SessionID: f.session.String(), StagingID: rec.ID.String()})
		assertCode(t, err, archive_errors.CodeAlreadyFinalized)
		assert.Empty(t, f.deleter.Calls())
		assert.Equal(t, *rec, f.stored(t, rec.ID.String()))
	})

	t.Run("repeat cancel", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, "")
		for i := 0; i < 2; i++ {
			_, err := f.svc.CancelUpload(ctx, CancelInput{SessionID: f.session.String(), StagingID: issued.StagingID})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, f.stored(t, issued.StagingID).CleanupAttempts)
	})

	t.Run("other session", func(t *testing.T) {
		f := newFixture(t)
		rec := staging.New(uuid.New(), uuid.NullUUID{}, time.Now(), time.Hour)
		f.repo.Put(*rec)
		_, err := f.svc.CancelUpload(ctx, CancelInput{SessionID: f.session.String(), StagingID: rec.ID.String()})
		assertCode(t, err, archive_errors.CodeForbidden)
	})
}

// racingRepo fails the first Update with a conflict after a concurrent
// writer added a file.
type racingRepo struct {
	*repository.MemoryStagingRepository
	raced bool
}

func (r *racingRepo) Update(ctx context.Context, rec *staging.Record) error {
	if !r.raced {
		r.raced = true
		current, err := r.MemoryStagingRepository.GetByID(ctx, rec.ID)
		if err != nil {
			return err
		}
		current.MergeFiles([]staging.StagedFile{{DriveFileID: "late", Size: 5}})
		if err := r.MemoryStagingRepository.Update(ctx, &current); err != nil {
			return err
		}
	}
	return r.MemoryStagingRepository.Update(ctx, rec)
}

func TestCancelRetriesAfterConcurrentUpdate(t *testing.T) {
	f := newFixture(t)
	repo := &racingRepo{MemoryStagingRepository: f.repo}
	sessions := repository.NewMemorySessionRepository(session.VisitorSession{ID: f.session})
	svc := NewUploadService(repo, sessions, f.codec, nil, f.deleter, f.settings, nil)

	rec := staging.New(f.session, uuid.NullUUID{}, time.Now(), time.Hour)
	rec.Status = staging.StatusUploaded
	rec.MergeFiles([]staging.StagedFile{{DriveFileID: "early", Size: 5}})
	f.repo.Put(*rec)

	res, err := svc.CancelUpload(context.Background(), CancelInput{SessionID: f.session.String(), StagingID: rec.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeleteSummary.Attempted)
	assert.Equal(t, [][]string{{"early"}, {"late"}}, f.deleter.Calls())
	assert.Equal(t, staging.StatusCancelled, f.stored(t, rec.ID.String()).Status)
}
