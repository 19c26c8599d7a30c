package handler

import (
	"net/http"

	"bookingengine/internal/middleware"
	"bookingengine/internal/service"
	"bookingengine/pkg/response"

	"github.com/gin-gonic/gin"
)

type RuleHandler struct {
	ruleService service.RuleService
	guard       *middleware.Guard
}

func NewRuleHandler(ruleService service.RuleService, guard *middleware.Guard) *RuleHandler {
	return &RuleHandler{ruleService: ruleService, guard: guard}
}

func (h *RuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := h.guard.Roles(middleware.RoleAdmin, middleware.RoleManager)

	tiers := router.Group("/api/tiers/:tierId/rules")
	tiers.Use(admin)
	{
		tiers.GET("", h.ListRules)
		tiers.POST("", h.CreateRule)
	}

	rules := router.Group("/api/rules")
	rules.Use(admin)
	{
		rules.GET("/:id", h.GetRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
	}
}

// ListRules lists every rule of a tier, inactive ones included
// @Summary      List tier rules
// @Tags         rules
// @Security     BearerAuth
// @Produce      json
// @Param        tierId  path      string  true  "Tier ID"
// @Success      200     {object}  response.Response{data=[]service.RuleResponse}
// @Failure      404     {object}  response.Response
// @Router       /api/tiers/{tierId}/rules [get]
func (h *RuleHandler) ListRules(c *gin.Context) {
	list, err := h.ruleService.ListRules(c.Request.Context(), c.Param("tierId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, list))
}

// CreateRule adds a rule to a tier
// @Summary      Create a booking rule
// @Tags         rules
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        tierId   path      string               true  "Tier ID"
// @Param        request  body      service.RuleRequest  true  "Rule definition"
// @Success      201      {object}  response.Response{data=service.RuleResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/tiers/{tierId}/rules [post]
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	rule, err := h.ruleService.CreateRule(c.Request.Context(), middleware.CurrentUserID(c), c.Param("tierId"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rule))
}

// GetRule returns one rule
// @Summary      Get a booking rule
// @Tags         rules
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  response.Response{data=service.RuleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/rules/{id} [get]
func (h *RuleHandler) GetRule(c *gin.Context) {
	rule, err := h.ruleService.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// UpdateRule replaces a rule definition
// @Summary      Update a booking rule
// @Tags         rules
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true  "Rule ID"
// @Param        request  body      service.RuleRequest  true  "Rule definition"
// @Success      200      {object}  response.Response{data=service.RuleResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/rules/{id} [put]
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	rule, err := h.ruleService.UpdateRule(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// DeleteRule deactivates a rule
// @Summary      Deactivate a booking rule
// @Tags         rules
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/rules/{id} [delete]
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	if err := h.ruleService.DeleteRule(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Rule deactivated"}))
}
