package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/apikeys/internal/httputil"
	"github.com/allisson/apikeys/internal/token/http/dto"
	"github.com/allisson/apikeys/internal/token/usecase"
)

// AuditLogHandler handles HTTP requests for token audit log entries.
type AuditLogHandler struct {
	auditLogRepo usecase.AuditLogRepository
	logger       *slog.Logger
}

// NewAuditLogHandler creates a new audit log handler with required dependencies.
func NewAuditLogHandler(auditLogRepo usecase.AuditLogRepository, logger *slog.Logger) *AuditLogHandler {
	return &AuditLogHandler{
		auditLogRepo: auditLogRepo,
		logger:       logger,
	}
}

// ListHandler retrieves audit log entries newest first with pagination.
// GET /v1/token-audit-logs?offset=0&limit=50
func (h *AuditLogHandler) ListHandler(c *gin.Context) {
	page, err := httputil.ParsePage(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	entries, err := h.auditLogRepo.List(c.Request.Context(), page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAuditLogsToListResponse(entries))
}
