package manifest

import (
	"fmt"
	"testing"

	archive_errors "literary-archive/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{
	MaxFiles:     3,
	MaxFileBytes: 1000,
	AllowedMIME:  []string{"application/pdf", "image/png"},
}

func TestValidateManifest(t *testing.T) {
	cases := []struct {
		name    string
		entries []Entry
		wantErr string
	}{
		{"single pdf", []Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1000}}, ""},
		{"mime params and case", []Entry{{Name: "a.png", Mime: "Image/PNG; q=1", Size: 1}}, ""},
		{"empty", nil, "at least one file"},
		{"too many", []Entry{
			{Name: "1", Mime: "image/png", Size: 1},
			{Name: "2", Mime: "image/png", Size: 1},
			{Name: "3", Mime: "image/png", Size: 1},
			{Name: "4", Mime: "image/png", Size: 1},
		}, "at most 3 files"},
		{"blank name", []Entry{{Name: "  ", Mime: "image/png", Size: 1}}, "file 1: name is required"},
		{"bad mime", []Entry{{Name: "x.exe", Mime: "application/x-msdownload", Size: 1}}, "not allowed"},
		{"zero size", []Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 0}}, "greater than zero"},
		{"too big", []Entry{{Name: "a.pdf", Mime: "application/pdf", Size: 1001}}, "exceeds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateManifest(tc.entries, testPolicy)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, archive_errors.ErrPolicyViolation)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateManifestFailFast(t *testing.T) {
	err := ValidateManifest([]Entry{
		{Name: "ok.pdf", Mime: "application/pdf", Size: 10},
		{Name: "", Mime: "text/plain", Size: -1},
		{Name: "big.pdf", Mime: "application/pdf", Size: 5000},
	}, testPolicy)
	require.Error(t, err)
	assert.Equal(t, "file 2: name is required", Message(err))
}

func TestValidateManifestBoundary(t *testing.T) {
	entries := make([]Entry, 0, testPolicy.MaxFiles+1)
	for i := 0; i <= testPolicy.MaxFiles; i++ {
		entries = append(entries, Entry{Name: fmt.Sprintf("%d.pdf", i), Mime: "application/pdf", Size: 1})
	}
	assert.NoError(t, ValidateManifest(entries[:testPolicy.MaxFiles], testPolicy))
	assert.Error(t, ValidateManifest(entries, testPolicy))
}

func TestValidateUploaded(t *testing.T) {
	good := UploadedEntry{DriveFileID: "d1", Name: "a.pdf", Mime: "application/pdf", Size: 10, Receipt: "r.s"}
	require.NoError(t, ValidateUploaded([]UploadedEntry{good}, testPolicy))

	missingID := good
	missingID.DriveFileID = ""
	assert.ErrorContains(t, ValidateUploaded([]UploadedEntry{missingID}, testPolicy), "drive_file_id is required")

	missingReceipt := good
	missingReceipt.Receipt = " "
	assert.ErrorContains(t, ValidateUploaded([]UploadedEntry{missingReceipt}, testPolicy), "receipt is required")

	badMime := good
	badMime.Mime = "text/html"
	assert.ErrorContains(t, ValidateUploaded([]UploadedEntry{badMime}, testPolicy), "not allowed")
}
