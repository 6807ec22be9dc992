// Package store defines the abstract repositories the orchestration core
// persists through, plus in-memory implementations used by tests and the
// embeddable assembly.
package store

import (
	"context"
	"errors"

	"github.com/lei/screwpipe/internal/models"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// BuildStore persists builds. Updates are last-write-wins: this layer does
// not serialize concurrent updates to the same build.
type BuildStore interface {
	Get(ctx context.Context, id int64) (*models.Build, error)
	Create(ctx context.Context, build *models.Build) (*models.Build, error)
	Update(ctx context.Context, build *models.Build) error
	// ListActiveByJob returns the job's builds still in a mutable status.
	ListActiveByJob(ctx context.Context, jobID int64) ([]*models.Build, error)
}

// EventStore persists events.
type EventStore interface {
	Get(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) (*models.Event, error)
	Update(ctx context.Context, event *models.Event) error
	ListByPipeline(ctx context.Context, pipelineID int64) ([]*models.Event, error)
}

// PipelineStore reads registered pipelines.
type PipelineStore interface {
	Get(ctx context.Context, id int64) (*models.Pipeline, error)
	GetByScmURI(ctx context.Context, scmURI string) (*models.Pipeline, error)
	Update(ctx context.Context, pipeline *models.Pipeline) error
}

// JobStore persists jobs.
type JobStore interface {
	Get(ctx context.Context, id int64) (*models.Job, error)
	ListByPipeline(ctx context.Context, pipelineID int64) ([]*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
}

// TriggerStore persists cross-pipeline trigger records. Create validates
// that the dest embeds exactly one pipeline locator, so reads never have
// to re-validate.
type TriggerStore interface {
	Create(ctx context.Context, record *models.TriggerRecord) (*models.TriggerRecord, error)
	ListBySrc(ctx context.Context, src string) ([]*models.TriggerRecord, error)
}
