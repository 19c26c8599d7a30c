package handler

import (
	"net/http"

	"bookingengine/internal/middleware"
	"bookingengine/internal/service"
	"bookingengine/pkg/pagination"
	"bookingengine/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	guard        *middleware.Guard
}

func NewAuditHandler(auditService service.AuditService, guard *middleware.Guard) *AuditHandler {
	return &AuditHandler{auditService: auditService, guard: guard}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(h.guard.Roles(middleware.RoleAdmin, middleware.RoleManager))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs pages through the audit trail
// @Summary      Get audit logs
// @Description  Newest first. entity_id narrows the trail to one reservation, approval or rule.
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        entity_id  query     string  false  "Entity ID"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=pagination.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), c.Query("entity_id"), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(logs, total)))
}
