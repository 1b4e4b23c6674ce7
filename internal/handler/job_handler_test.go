package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
)

type generationRunnerMock struct {
	summary *dto.GenerationSummary
	err     error
	calls   int
}

func (m *generationRunnerMock) Run(ctx context.Context) (*dto.GenerationSummary, error) {
	m.calls++
	return m.summary, m.err
}

type pingerStub struct{ err error }

func (p pingerStub) Ping(ctx context.Context) error { return p.err }

func TestJobHandlerRunLessonGeneration(t *testing.T) {
	runner := &generationRunnerMock{summary: &dto.GenerationSummary{TeachersProcessed: 2, LessonsGenerated: 16, TeachersFailed: []string{}}}
	h := NewJobHandler(runner)

	c, w := newContext(t, http.MethodPost, "/jobs/lesson-generation", "", adminClaims)
	h.RunLessonGeneration(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runner.calls)
	assert.Contains(t, w.Body.String(), `"lessonsGenerated":16`)
}

func TestJobHandlerRunFailure(t *testing.T) {
	h := NewJobHandler(&generationRunnerMock{err: errors.New("list slots: boom")})

	c, w := newContext(t, http.MethodPost, "/jobs/lesson-generation", "", adminClaims)
	h.RunLessonGeneration(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{"postgres": pingerStub{}})
	c, w := newContext(t, http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]Pinger{"postgres": pingerStub{}, "redis": pingerStub{err: errors.New("dial tcp: refused")}})
	c, w = newContext(t, http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "refused")
}

func TestMetricsHandlerPrometheusWithoutService(t *testing.T) {
	h := NewMetricsHandler(nil, nil)
	c, w := newContext(t, http.MethodGet, "/metrics", "", nil)
	h.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
