package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daybook-io/daybook/internal/booking"
	"github.com/daybook-io/daybook/internal/dto"
	"github.com/daybook-io/daybook/pkg/response"
	"github.com/daybook-io/daybook/pkg/telemetry"
)

// BookingHandler handles booking lifecycle HTTP requests
type BookingHandler struct {
	bookingService booking.Service
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService booking.Service) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	b, err := h.bookingService.GetBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.BookingFromDomain(b))
}

// ListBookings handles GET /bookings?email=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	email := c.Query("email")
	if email == "" {
		span.SetStatus(codes.Error, "missing email")
		response.BadRequest(c, "email query parameter is required")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.bookingService.ListBookings(ctx, email, limit, offset)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	out := make([]*dto.BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, dto.BookingFromDomain(b))
	}

	span.SetAttributes(attribute.Int("count", len(out)))
	span.SetStatus(codes.Ok, "")
	response.Success(c, out)
}

// CancelBooking handles POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	b, err := h.bookingService.CancelBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.BookingFromDomain(b))
}

// UpdatePeopleCount handles PATCH /bookings/:id/people
func (h *BookingHandler) UpdatePeopleCount(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.update_people")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID := c.Param("id")

	var req dto.UpdatePeopleCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Int("people", req.NumberOfPeople),
	)

	b, err := h.bookingService.UpdatePeopleCount(ctx, bookingID, req.NumberOfPeople)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.BookingFromDomain(b))
}

// MarkAttendance handles POST /bookings/:id/attendance
func (h *BookingHandler) MarkAttendance(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.attendance")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID := c.Param("id")

	var req dto.AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Bool("attended", req.Attended),
	)

	b, err := h.bookingService.MarkAttendance(ctx, bookingID, req.Attended)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		respondError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.BookingFromDomain(b))
}
