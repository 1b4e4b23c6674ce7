package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/jobs"
)

const notificationJobType = "scheduler.notification"

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationSender delivers a notification to teachers and students.
type NotificationSender interface {
	Send(ctx context.Context, n models.Notification) error
}

// NotificationService hands scheduling events to the background queue. Delivery is
// fire-and-forget: failures are logged and never affect the booking that caused them.
type NotificationService struct {
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(queue jobEnqueuer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, logger: logger}
}

// Notify enqueues n without blocking.
func (s *NotificationService) Notify(n models.Notification) {
	if s == nil || s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: notificationJobType, Payload: n}); err != nil {
		s.logger.Warn("notification dropped", zap.String("type", string(n.Type)), zap.String("teacher_id", n.TeacherID), zap.Error(err))
	}
}

// NotificationWorker bridges queue jobs to a NotificationSender.
type NotificationWorker struct {
	sender NotificationSender
	logger *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(sender NotificationSender, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{sender: sender, logger: logger}
}

// Handle processes a queue job.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		w.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	if err := w.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("send %s notification: %w", n.Type, err)
	}
	return nil
}

// LogSender writes notifications to the structured log. It stands in for an email or
// push provider.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements NotificationSender.
func (s *LogSender) Send(_ context.Context, n models.Notification) error {
	s.logger.Info("notification",
		zap.String("type", string(n.Type)),
		zap.String("teacher_id", n.TeacherID),
		zap.String("student_id", n.StudentID),
		zap.String("slot_id", n.SlotID),
		zap.Strings("lesson_ids", n.LessonIDs),
	)
	return nil
}
