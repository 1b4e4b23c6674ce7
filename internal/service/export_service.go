package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/export"
)

type lessonLister interface {
	ListByTeacher(ctx context.Context, actor models.Actor, teacherID string, query dto.LessonQuery) ([]models.Lesson, error)
}

// ExportResult is a rendered lesson schedule ready for download.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders a teacher's lesson schedule as CSV or PDF.
type ExportService struct {
	lessons   lessonLister
	renderers map[string]export.Renderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Missing renderers default to the
// CSV and PDF exporters.
func NewExportService(lessons lessonLister, logger *zap.Logger, renderers ...export.Renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(renderers) == 0 {
		renderers = []export.Renderer{export.NewCSVExporter(), export.NewPDFExporter()}
	}
	byFormat := make(map[string]export.Renderer, len(renderers))
	for _, r := range renderers {
		byFormat[r.Extension()] = r
	}
	return &ExportService{lessons: lessons, renderers: byFormat, logger: logger}
}

var lessonExportHeaders = []string{"Lesson ID", "Start", "End", "Duration", "Student", "Status", "Recurring Slot", "Version"}

// ExportLessons renders the lessons matching query in the requested format.
func (s *ExportService) ExportLessons(ctx context.Context, actor models.Actor, teacherID string, query dto.LessonQuery) (*ExportResult, error) {
	format := strings.ToLower(query.Format)
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %s", query.Format))
	}

	lessons, err := s.lessons.ListByTeacher(ctx, actor, teacherID, query)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Lessons for %s", teacherID),
		Headers: lessonExportHeaders,
		Rows:    make([]map[string]string, 0, len(lessons)),
	}
	for _, l := range lessons {
		slot := ""
		if l.RecurringSlotID != nil {
			slot = *l.RecurringSlotID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Lesson ID":      l.ID,
			"Start":          l.StartsAt.UTC().Format(time.RFC3339),
			"End":            l.EndsAt.UTC().Format(time.RFC3339),
			"Duration":       strconv.Itoa(l.Duration),
			"Student":        l.StudentID,
			"Status":         string(l.Status),
			"Recurring Slot": slot,
			"Version":        strconv.Itoa(l.Version),
		})
	}

	body, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render lesson export")
	}

	filename := fmt.Sprintf("lessons_%s_%s.%s", sanitizeFilename(teacherID), time.Now().UTC().Format("20060102_150405"), renderer.Extension())
	s.logger.Info("lessons exported", zap.String("teacher_id", teacherID), zap.String("format", format), zap.Int("rows", len(lessons)))
	return &ExportResult{Filename: filename, ContentType: renderer.ContentType(), Body: body}, nil
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
