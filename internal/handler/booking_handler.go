package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type singleBooker interface {
	BookSingleLesson(ctx context.Context, actor models.Actor, req dto.BookingRequest) (*models.Lesson, error)
}

type recurringSlotManager interface {
	BookRecurringSlot(ctx context.Context, actor models.Actor, req dto.BookingRequest) (*dto.RecurringBookingResult, error)
	GetSlot(ctx context.Context, actor models.Actor, slotID string) (*models.RecurringSlot, error)
	CancelSlot(ctx context.Context, actor models.Actor, slotID string, req dto.CancelSlotRequest) (*dto.CancelSlotResult, error)
}

// BookingHandler exposes single and recurring booking endpoints.
type BookingHandler struct {
	bookings  singleBooker
	recurring recurringSlotManager
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(bookings singleBooker, recurring recurringSlotManager) *BookingHandler {
	return &BookingHandler{bookings: bookings, recurring: recurring}
}

// Book godoc
// @Summary Book a lesson
// @Description Books a single lesson, or a weekly recurring slot when isRecurring is true. Conflicts return NOT_AVAILABLE, ALREADY_BOOKED, SLOT_TAKEN or OUT_OF_BOOKING_WINDOW.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.BookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Book(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid booking payload"))
		return
	}

	if req.IsRecurring {
		result, err := h.recurring.BookRecurringSlot(c.Request.Context(), actor, req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, result)
		return
	}

	lesson, err := h.bookings.BookSingleLesson(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// GetSlot godoc
// @Summary Get a recurring slot
// @Tags Bookings
// @Produce json
// @Param id path string true "Recurring slot ID"
// @Success 200 {object} response.Envelope
// @Router /recurring-slots/{id} [get]
func (h *BookingHandler) GetSlot(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	slot, err := h.recurring.GetSlot(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// CancelSlot godoc
// @Summary Cancel a recurring slot
// @Description Cancels the slot, its subscription and its scheduled lessons from cancelDate on. Repeating the call returns the stored result with alreadyCancelled set.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Recurring slot ID"
// @Param payload body dto.CancelSlotRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /recurring-slots/{id}/cancel [post]
func (h *BookingHandler) CancelSlot(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CancelSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid cancellation payload"))
		return
	}
	result, err := h.recurring.CancelSlot(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
