package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/middleware"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Bookings     *BookingHandler
	Lessons      *LessonHandler
	Availability *AvailabilityHandler
	Jobs         *JobHandler
	Metrics      *MetricsHandler
}

// RegisterRoutes mounts the scheduler API on r. Every route under prefix requires a
// bearer token; teacher-scoped writes are limited to the teacher themselves or an admin.
func RegisterRoutes(r gin.IRouter, prefix string, validator middleware.TokenValidator, h Handlers) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	api.Use(middleware.JWT(validator), middleware.WithResponseMeta())

	if h.Bookings != nil {
		api.POST("/bookings", h.Bookings.Book)
		api.GET("/recurring-slots/:id", h.Bookings.GetSlot)
		api.POST("/recurring-slots/:id/cancel", h.Bookings.CancelSlot)
	}

	teachers := api.Group("/teachers/:id")
	if h.Availability != nil {
		teachers.GET("/availability", h.Availability.OpenWindows)
		owner := middleware.RBAC(string(models.RoleAdmin), "SELF")
		teachers.PUT("/availability", owner, h.Availability.Replace)
		teachers.POST("/blocked-times", owner, h.Availability.AddBlockedTime)
		teachers.DELETE("/blocked-times/:blockedId", owner, h.Availability.RemoveBlockedTime)
	}

	if h.Lessons != nil {
		teachers.GET("/lessons", h.Lessons.ListByTeacher)
		teachers.GET("/lessons/export", h.Lessons.Export)
		api.GET("/lessons/:id", h.Lessons.Get)
		api.PATCH("/lessons/:id", h.Lessons.Update)
	}

	admin := api.Group("", middleware.RequireRoles(models.RoleAdmin))
	if h.Jobs != nil {
		admin.POST("/jobs/lesson-generation", h.Jobs.RunLessonGeneration)
	}
	if h.Metrics != nil {
		admin.GET("/metrics/summary", h.Metrics.Snapshot)
	}
}
