package handler

import (
	"net/http"

	"bookingengine/internal/middleware"
	"bookingengine/internal/service"
	"bookingengine/pkg/response"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	bookingService service.BookingService
	guard          *middleware.Guard
}

func NewBookingHandler(bookingService service.BookingService, guard *middleware.Guard) *BookingHandler {
	return &BookingHandler{bookingService: bookingService, guard: guard}
}

func (h *BookingHandler) RegisterRoutes(router *gin.RouterGroup) {
	bookings := router.Group("/api/bookings")
	bookings.Use(h.guard.Authenticated())
	{
		bookings.POST("/evaluate", h.EvaluateBooking)
		bookings.POST("", h.CreateBooking)
	}

	router.GET("/api/reservations/:id/approvals", h.guard.Authenticated(), h.ListReservationApprovals)
}

// EvaluateBooking checks a booking against the tier's rules without saving anything
// @Summary      Evaluate a booking
// @Description  Runs every applicable rule of the tier and reports blocking and approval-requiring rules
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.BookingRequest  true  "Booking window"
// @Success      200      {object}  response.Response{data=service.Evaluation}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/bookings/evaluate [post]
func (h *BookingHandler) EvaluateBooking(c *gin.Context) {
	var req service.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	req.UserID = middleware.CurrentUserID(c)

	eval, err := h.bookingService.EvaluateBooking(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, eval))
}

// CreateBooking creates a reservation and fans out the approvals it needs
// @Summary      Create a booking
// @Description  Blocked bookings are refused with 422 and not saved; otherwise the reservation is created pending or approved
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.BookingRequest  true  "Booking window"
// @Success      201      {object}  response.Response{data=service.BookingResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response{data=service.BookingResult}
// @Router       /api/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req service.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	req.UserID = middleware.CurrentUserID(c)

	result, err := h.bookingService.CreateReservation(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	if result.Blocked {
		c.JSON(http.StatusUnprocessableEntity, response.Refused(http.StatusUnprocessableEntity, result.BlockReason, result))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListReservationApprovals lists every approval issued for a reservation.
// Only the owner, its approvers, admins and managers may read them.
// @Summary      List reservation approvals
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Reservation ID"
// @Success      200  {object}  response.Response{data=[]service.ApprovalResponseItem}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/reservations/{id}/approvals [get]
func (h *BookingHandler) ListReservationApprovals(c *gin.Context) {
	items, err := h.bookingService.ListReservationApprovals(c.Request.Context(), c.Param("id"),
		middleware.CurrentUserID(c), middleware.IsPrivileged(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}
