package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/app"
	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
	"github.com/noah-isme/tutor-scheduler-api/pkg/logger"
)

// lesson-generator runs the lesson generation job once and exits. Schedule it from
// cron; repeated runs only fill gaps. Exit code 2 means some teachers failed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	code := run(cfg, logr)
	_ = logr.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, logr *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logr)
	if err != nil {
		logr.Error("failed to wire application", zap.Error(err))
		return 1
	}
	defer application.Close()

	summary, err := application.Generation.Run(ctx)
	if err != nil {
		logr.Error("lesson generation failed", zap.Error(err))
		return 1
	}

	logr.Info("lesson generation finished",
		zap.Int("teachers_processed", summary.TeachersProcessed),
		zap.Int("lessons_generated", summary.LessonsGenerated),
		zap.Int("slots_skipped", summary.SlotsSkipped),
		zap.Strings("teachers_failed", summary.TeachersFailed),
	)
	if len(summary.TeachersFailed) > 0 {
		return 2
	}
	return 0
}
