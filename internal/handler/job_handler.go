package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type generationRunner interface {
	Run(ctx context.Context) (*dto.GenerationSummary, error)
}

// JobHandler triggers background scheduler jobs on demand.
type JobHandler struct {
	generation generationRunner
}

// NewJobHandler constructs the handler.
func NewJobHandler(generation generationRunner) *JobHandler {
	return &JobHandler{generation: generation}
}

// RunLessonGeneration godoc
// @Summary Run the lesson generation job
// @Description Extends every active recurring slot to the rolling horizon. Safe to repeat.
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/lesson-generation [post]
func (h *JobHandler) RunLessonGeneration(c *gin.Context) {
	summary, err := h.generation.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
