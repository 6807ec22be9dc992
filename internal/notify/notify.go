// Package notify publishes build_status notifications to external
// observability consumers. Publication is fire-and-forget: the
// orchestration core never depends on it succeeding.
package notify

import (
	"context"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/pkg/logger"
)

// BuildStatusEvent carries everything a notification consumer needs
type BuildStatusEvent struct {
	Build     *models.Build          `json:"build"`
	Event     *models.Event          `json:"event"`
	Pipeline  *models.Pipeline       `json:"pipeline"`
	JobName   string                 `json:"job_name"`
	Status    models.BuildStatus     `json:"status"`
	BuildLink string                 `json:"build_link"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
}

// Publisher emits build_status notifications
type Publisher interface {
	PublishBuildStatus(ctx context.Context, e BuildStatusEvent)
}

// LogPublisher writes notifications to the structured log. It is the
// default publisher when no external consumer is wired in.
type LogPublisher struct {
	logger *logger.Logger
}

// NewLogPublisher creates a publisher backed by the given logger
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log}
}

func (p *LogPublisher) PublishBuildStatus(ctx context.Context, e BuildStatusEvent) {
	p.logger.Info("build_status",
		"build_id", e.Build.ID,
		"job_name", e.JobName,
		"pipeline_id", e.Pipeline.ID,
		"status", e.Status,
		"build_link", e.BuildLink)
}
