package handler

import (
	"net/http"

	"bookingengine/internal/middleware"
	"bookingengine/internal/rules"
	"bookingengine/internal/service"
	"bookingengine/pkg/pagination"
	"bookingengine/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	guard           *middleware.Guard
}

func NewApprovalHandler(approvalService service.ApprovalService, guard *middleware.Guard) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, guard: guard}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	{
		// Email links carry the token; no session is required
		approvals.GET("/respond", h.RespondWithToken)
		approvals.POST("/respond", h.RespondWithToken)

		approvals.GET("/mine", h.guard.Authenticated(), h.ListMyApprovals)
		approvals.PUT("/:id/approve", h.guard.Authenticated(), h.ApproveRequest)
		approvals.PUT("/:id/reject", h.guard.Authenticated(), h.RejectRequest)
	}
}

// RespondWithToken approves or rejects through the token sent to the approver
// @Summary      Respond to an approval with its token
// @Description  recorded=200, already_responded=409, expired=410, not_found=404. The body always carries the outcome.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        token    query     string                        false  "Approval token (GET)"
// @Param        action   query     string                        false  "approve or reject (GET)"
// @Param        request  body      service.TokenResponseRequest  false  "Token and action (POST)"
// @Success      200      {object}  response.Response{data=service.ApprovalResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response{data=service.ApprovalResult}
// @Failure      409      {object}  response.Response{data=service.ApprovalResult}
// @Failure      410      {object}  response.Response{data=service.ApprovalResult}
// @Router       /api/approvals/respond [get]
// @Router       /api/approvals/respond [post]
func (h *ApprovalHandler) RespondWithToken(c *gin.Context) {
	var req service.TokenResponseRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.SubmitApprovalResponse(c.Request.Context(), req.Token, req.Action)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOutcome(c, result)
}

// ListMyApprovals lists the caller's pending approvals
// @Summary      List my pending approvals
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=pagination.Page}
// @Router       /api/approvals/mine [get]
func (h *ApprovalHandler) ListMyApprovals(c *gin.Context) {
	p := pagination.Parse(c)

	items, total, err := h.approvalService.ListPendingForUser(c.Request.Context(), middleware.CurrentUserID(c), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(items, total)))
}

// ApproveRequest approves one of the caller's approvals
// @Summary      Approve
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Approval ID"
// @Success      200  {object}  response.Response{data=service.ApprovalResult}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response{data=service.ApprovalResult}
// @Router       /api/approvals/{id}/approve [put]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	h.respondAsUser(c, rules.ActionApprove)
}

// RejectRequest rejects one of the caller's approvals
// @Summary      Reject
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Approval ID"
// @Success      200  {object}  response.Response{data=service.ApprovalResult}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response{data=service.ApprovalResult}
// @Router       /api/approvals/{id}/reject [put]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	h.respondAsUser(c, rules.ActionReject)
}

func (h *ApprovalHandler) respondAsUser(c *gin.Context, action rules.Action) {
	result, err := h.approvalService.RespondAsUser(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c), string(action))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOutcome(c, result)
}

func writeOutcome(c *gin.Context, result service.ApprovalResult) {
	code := http.StatusOK
	msg := ""
	switch result.Outcome {
	case service.OutcomeAlreadyResponded:
		code, msg = http.StatusConflict, "This request has already been responded to"
	case service.OutcomeExpired:
		code, msg = http.StatusGone, "This approval link has expired"
	case service.OutcomeNotFound:
		code, msg = http.StatusNotFound, "Approval request not found"
	}

	if code == http.StatusOK {
		c.JSON(code, response.Success(code, result))
		return
	}
	c.JSON(code, response.Refused(code, msg, result))
}
