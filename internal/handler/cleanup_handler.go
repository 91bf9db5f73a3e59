package handler

import (
	"net/http"

	"literary-archive/internal/services"
	"literary-archive/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type CleanupHandler struct {
	service *services.CleanupService
}

func NewCleanupHandler(service *services.CleanupService) *CleanupHandler {
	return &CleanupHandler{service: service}
}

// Run handles POST /v1/internal/cleanup. Authentication happens in
// middleware.CronAuthMiddleware.
func (h *CleanupHandler) Run(c *gin.Context) {
	report, err := h.service.Run(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	m := report.Metrics
	c.JSON(http.StatusOK, httpdto.CleanupResponse{
		OK: true,
		Metrics: httpdto.CleanupMetricsDTO{
			Scanned:       m.Scanned,
			Expired:       m.Expired,
			CleanupFailed: m.CleanupFailed,
			DeletedFiles:  m.DeletedFiles,
			DeletedRows:   m.DeletedRows,
			Failed:        m.Failed,
		},
		Cutoffs: httpdto.CleanupCutoffsDTO{
			Stale:         report.Cutoffs.Stale.UTC(),
			Finalized:     report.Cutoffs.Finalized.UTC(),
			CleanupFailed: report.Cutoffs.CleanupFailed.UTC(),
		},
	})
}
