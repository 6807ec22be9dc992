package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/internal/store"
	"github.com/lei/screwpipe/internal/trigger"
	"github.com/lei/screwpipe/pkg/logger"
)

// NextJobStarter starts the same-pipeline downstream jobs of a finished
// build, walking the pipeline's workflow graph. The resolution algorithm
// is owned by the execution scheduler.
type NextJobStarter interface {
	StartNextJobs(ctx context.Context, pipeline *models.Pipeline, job *models.Job, build *models.Build) error
}

// NopStarter is a NextJobStarter that does nothing, for deployments where
// the scheduler subscribes to build_status notifications instead.
type NopStarter struct{}

func (NopStarter) StartNextJobs(ctx context.Context, pipeline *models.Pipeline, job *models.Job, build *models.Build) error {
	return nil
}

// Cascade resolves and fires the downstream work of a successful build:
// same-pipeline next jobs plus externally-triggered pipelines registered
// in the trigger registry.
type Cascade struct {
	triggers  store.TriggerStore
	events    store.EventStore
	pipelines store.PipelineStore
	scm       scm.SCM
	starter   NextJobStarter
	logger    *logger.Logger
}

// NewCascade creates a new trigger cascade
func NewCascade(triggers store.TriggerStore, events store.EventStore, pipelines store.PipelineStore, s scm.SCM, starter NextJobStarter, log *logger.Logger) *Cascade {
	if starter == nil {
		starter = NopStarter{}
	}
	return &Cascade{
		triggers:  triggers,
		events:    events,
		pipelines: pipelines,
		scm:       s,
		starter:   starter,
		logger:    log,
	}
}

// Run fires the cascade for a successful build. Destinations are
// processed independently: one failure never blocks the others, and the
// returned error aggregates every per-item failure.
func (c *Cascade) Run(ctx context.Context, pipeline *models.Pipeline, job *models.Job, build *models.Build, requester models.Requester) error {
	var errs error

	if err := c.starter.StartNextJobs(ctx, pipeline, job, build); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("start next jobs for build %d: %w", build.ID, err))
	}

	src := trigger.SD(pipeline.ID, job.Name).String()
	records, err := c.triggers.ListBySrc(ctx, src)
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("list triggers for %s: %w", src, err))
	}
	if len(records) == 0 {
		return errs
	}

	// Multiple jobs in one destination pipeline subscribing to the same
	// source collapse to a single trigger.
	dests := make(map[int64]struct{}, len(records))
	for _, r := range records {
		id, err := trigger.ExtractPipelineID(r.Dest)
		if err != nil {
			// Dests are validated at registry-write time; a bad one here
			// is data corruption worth surfacing, not skipping silently.
			errs = multierr.Append(errs, err)
			continue
		}
		dests[id] = struct{}{}
	}

	c.logger.Debug("cascade: external triggers resolved",
		"src", src,
		"record_count", len(records),
		"dest_count", len(dests))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for destID := range dests {
		wg.Add(1)
		go func(destID int64) {
			defer wg.Done()
			if err := c.createExternalEvent(ctx, destID, src, pipeline, build, requester); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("trigger pipeline %d: %w", destID, err))
				mu.Unlock()
			}
		}(destID)
	}
	wg.Wait()

	return errs
}

// createExternalEvent creates one event on a destination pipeline
func (c *Cascade) createExternalEvent(ctx context.Context, destID int64, src string, srcPipeline *models.Pipeline, build *models.Build, requester models.Requester) error {
	dest, err := c.pipelines.Get(ctx, destID)
	if err != nil {
		return fmt.Errorf("get pipeline: %w", err)
	}

	sha, err := c.scm.GetCommitSHA(ctx, dest.ScmURI, dest.Token)
	if err != nil {
		return fmt.Errorf("get commit sha: %w", err)
	}

	event := &models.Event{
		PipelineID:        dest.ID,
		Type:              models.EventTypePipeline,
		SHA:               sha,
		ConfigPipelineSHA: sha,
		StartFrom:         src,
		CauseMessage:      fmt.Sprintf("Triggered by build %d of pipeline %d", build.ID, srcPipeline.ID),
		Creator:           requester.Display(),
		ParentBuildID:     build.ID,
	}
	created, err := c.events.Create(ctx, event)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	c.logger.Info("cascade: external event created",
		"src", src,
		"dest_pipeline_id", dest.ID,
		"event_id", created.ID,
		"parent_build_id", build.ID)
	return nil
}
