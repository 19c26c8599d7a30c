package handler

import (
	"errors"
	"net/http"

	"bookingengine/internal/service"
	"bookingengine/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError maps service errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, service.ErrInvalidWindow),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrInvalidConditions):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrTierNotFound),
		errors.Is(err, service.ErrReservationNotFound),
		errors.Is(err, service.ErrApprovalNotFound),
		errors.Is(err, service.ErrRuleNotFound):
		code, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrNotApprover),
		errors.Is(err, service.ErrNotTierMember),
		errors.Is(err, service.ErrNotParticipant):
		code, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrAssetUnavailable):
		code, msg = http.StatusConflict, err.Error()
	default:
		_ = c.Error(err)
	}

	c.JSON(code, response.Error(code, msg))
}
