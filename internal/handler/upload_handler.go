// Package handler provides HTTP handlers for API endpoints.
package handler

import (
	"net/http"

	"literary-archive/internal/manifest"
	"literary-archive/internal/services"
	"literary-archive/internal/transport/httpdto"
	archive_errors "literary-archive/pkg/errors"
	"literary-archive/pkg/logger"

	"github.com/gin-gonic/gin"
)

// UploadHandler serves the staged upload endpoints.
type UploadHandler struct {
	service *services.UploadService
}

func NewUploadHandler(service *services.UploadService) *UploadHandler {
	return &UploadHandler{service: service}
}

// IssueToken handles POST /v1/uploads/token.
func (h *UploadHandler) IssueToken(c *gin.Context) {
	var req httpdto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(archive_errors.InvalidRequest("invalid request body"))
		return
	}

	entries := make([]manifest.Entry, 0, len(req.FileManifest))
	for _, e := range req.FileManifest {
		entries = append(entries, manifest.Entry{Name: e.Name, Mime: e.Mime, Size: e.Size})
	}

	ctx := logger.WithSession(c.Request.Context(), req.SessionID)
	res, err := h.service.IssueToken(ctx, services.IssueTokenInput{
		SessionID:    req.SessionID,
		StagingID:    req.StagingID,
		CaptchaToken: req.RecaptchaToken,
		RemoteIP:     c.ClientIP(),
		Manifest:     entries,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, httpdto.IssueTokenResponse{
		OK:               true,
		StagingID:        res.StagingID,
		UploadToken:      res.UploadToken,
		ExpiresAt:        res.ExpiresAt.UTC(),
		StagingExpiresAt: res.StagingExpiresAt.UTC(),
		Limits: httpdto.LimitsDTO{
			MaxFiles:     res.Limits.MaxFiles,
			MaxSizeBytes: res.Limits.MaxSizeBytes,
			AllowedMIME:  res.Limits.AllowedMIME,
		},
	})
}

// Finalize handles POST /v1/uploads/finalize.
func (h *UploadHandler) Finalize(c *gin.Context) {
	var req httpdto.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(archive_errors.InvalidRequest("invalid request body"))
		return
	}

	files := make([]manifest.UploadedEntry, 0, len(req.UploadedFiles))
	for _, f := range req.UploadedFiles {
		files = append(files, manifest.UploadedEntry{
			DriveFileID: f.DriveFileID,
			Name:        f.Name,
			Mime:        f.Mime,
			Size:        f.Size,
			Receipt:     f.Receipt,
		})
	}

	ctx := logger.WithSession(c.Request.Context(), req.SessionID)
	res, err := h.service.FinalizeUpload(ctx, services.FinalizeInput{
		SessionID: req.SessionID,
		StagingID: req.StagingID,
		Files:     files,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]httpdto.StagedFileDTO, 0, len(res.Files))
	for _, f := range res.Files {
		out = append(out, httpdto.StagedFileDTO{
			DriveFileID: f.DriveFileID,
			Name:        f.Name,
			Mime:        f.Mime,
			Size:        f.Size,
			ReceivedAt:  f.ReceivedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, httpdto.FinalizeResponse{
		OK:             true,
		StagingID:      res.StagingID,
		FileCount:      res.FileCount,
		TotalBytes:     res.TotalBytes,
		Files:          out,
		ReadyForSubmit: res.ReadyForSubmit,
	})
}

// Cancel handles POST /v1/uploads/cancel. The response is ok even when the
// relay could not delete every file; delete_summary carries that outcome.
func (h *UploadHandler) Cancel(c *gin.Context) {
	var req httpdto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(archive_errors.InvalidRequest("invalid request body"))
		return
	}

	ctx := logger.WithSession(c.Request.Context(), req.SessionID)
	res, err := h.service.CancelUpload(ctx, services.CancelInput{
		SessionID: req.SessionID,
		StagingID: req.StagingID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, httpdto.CancelResponse{
		OK:        true,
		StagingID: res.StagingID,
		Status:    string(res.Status),
		DeleteSummary: httpdto.DeleteSummaryDTO{
			Attempted: res.DeleteSummary.Attempted,
			Deleted:   res.DeleteSummary.Deleted,
			NotFound:  res.DeleteSummary.NotFound,
			Success:   res.DeleteSummary.Success,
			Error:     res.DeleteSummary.Error,
		},
	})
}
