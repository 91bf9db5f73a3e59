package middleware

import (
	"net/http"

	"literary-archive/internal/transport/httpdto"
	archive_errors "literary-archive/pkg/errors"
	"literary-archive/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Coded errors are returned as-is; anything else is logged and hidden
// behind internal_error.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		if appErr, ok := archive_errors.As(err); ok {
			if appErr.Status >= http.StatusInternalServerError && l != nil {
				l.Error(c.Request.Context(), "request failed", zap.String("code", appErr.Code), zap.Error(err))
			}
			c.JSON(appErr.Status, httpdto.NewErrorResponse(appErr.Message, appErr.Code))
			return
		}

		if l != nil {
			l.Error(c.Request.Context(), "unhandled request error", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", archive_errors.CodeInternal))
	}
}
