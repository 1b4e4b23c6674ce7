package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/middleware"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type availabilityManager interface {
	OpenWindows(ctx context.Context, teacherID, date string) (*dto.OpenWindowsResponse, error)
	ReplaceWeekly(ctx context.Context, actor models.Actor, teacherID string, req dto.ReplaceAvailabilityRequest) ([]models.TeacherAvailability, error)
	AddBlockedTime(ctx context.Context, actor models.Actor, teacherID string, req dto.CreateBlockedTimeRequest) (*models.BlockedTime, error)
	RemoveBlockedTime(ctx context.Context, actor models.Actor, teacherID, blockedID string) error
}

// AvailabilityHandler exposes teacher availability endpoints.
type AvailabilityHandler struct {
	service availabilityManager
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(svc availabilityManager) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// OpenWindows godoc
// @Summary Open windows of a teacher on a day
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date query string true "Day in the teacher's timezone, YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) OpenWindows(c *gin.Context) {
	if _, ok := actorFromContext(c); !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required"))
		return
	}
	result, err := h.service.OpenWindows(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetTimezone(c, result.Timezone)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Replace godoc
// @Summary Replace a teacher's weekly availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body dto.ReplaceAvailabilityRequest true "Weekly windows"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [put]
func (h *AvailabilityHandler) Replace(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ReplaceAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid availability payload"))
		return
	}
	windows, err := h.service.ReplaceWeekly(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

// AddBlockedTime godoc
// @Summary Block a time range for a teacher
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body dto.CreateBlockedTimeRequest true "Blocked range"
// @Success 201 {object} response.Envelope
// @Router /teachers/{id}/blocked-times [post]
func (h *AvailabilityHandler) AddBlockedTime(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateBlockedTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid blocked time payload"))
		return
	}
	blocked, err := h.service.AddBlockedTime(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, blocked)
}

// RemoveBlockedTime godoc
// @Summary Remove a blocked time range
// @Tags Availability
// @Param id path string true "Teacher ID"
// @Param blockedId path string true "Blocked time ID"
// @Success 204
// @Router /teachers/{id}/blocked-times/{blockedId} [delete]
func (h *AvailabilityHandler) RemoveBlockedTime(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.RemoveBlockedTime(c.Request.Context(), actor, c.Param("id"), c.Param("blockedId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
