package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type lessonReaderWriter interface {
	Get(ctx context.Context, actor models.Actor, id string) (*models.Lesson, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateLessonRequest) (*models.Lesson, error)
	ListByTeacher(ctx context.Context, actor models.Actor, teacherID string, query dto.LessonQuery) ([]models.Lesson, error)
}

type lessonExporter interface {
	ExportLessons(ctx context.Context, actor models.Actor, teacherID string, query dto.LessonQuery) (*service.ExportResult, error)
}

// LessonHandler exposes lesson reads, optimistic edits and exports.
type LessonHandler struct {
	lessons  lessonReaderWriter
	exporter lessonExporter
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(lessons lessonReaderWriter, exporter lessonExporter) *LessonHandler {
	return &LessonHandler{lessons: lessons, exporter: exporter}
}

// Get godoc
// @Summary Get a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	lesson, err := h.lessons.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("ETag", etag(lesson.Version))
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Update godoc
// @Summary Update lesson notes, homework or status
// @Description Applies the patch only when expectedVersion matches; otherwise responds 409 VERSION_CONFLICT and the client reloads.
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.UpdateLessonRequest true "Lesson patch"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id} [patch]
func (h *LessonHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid lesson payload"))
		return
	}
	lesson, err := h.lessons.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("ETag", etag(lesson.Version))
	response.JSON(c, http.StatusOK, lesson, nil)
}

// ListByTeacher godoc
// @Summary List a teacher's lessons
// @Tags Lessons
// @Produce json
// @Param id path string true "Teacher ID"
// @Param from query string false "First day, YYYY-MM-DD"
// @Param to query string false "Day after the last, YYYY-MM-DD"
// @Param status query string false "SCHEDULED, COMPLETED or CANCELLED"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/lessons [get]
func (h *LessonHandler) ListByTeacher(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.LessonQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid lesson query"))
		return
	}
	lessons, err := h.lessons.ListByTeacher(c.Request.Context(), actor, c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, &models.Pagination{Page: 1, PageSize: len(lessons), TotalCount: len(lessons)})
}

// Export godoc
// @Summary Export a teacher's lessons
// @Tags Lessons
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Teacher ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /teachers/{id}/lessons/export [get]
func (h *LessonHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.LessonQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid export query"))
		return
	}
	result, err := h.exporter.ExportLessons(c.Request.Context(), actor, c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, result.Filename, result.ContentType, result.Body)
}

func etag(version int) string {
	return `W/"` + strconv.Itoa(version) + `"`
}
