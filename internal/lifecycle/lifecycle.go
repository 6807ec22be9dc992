// Package lifecycle implements the build status state machine and the
// cross-pipeline trigger cascade that runs when a build succeeds.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/notify"
	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/internal/store"
	"github.com/lei/screwpipe/pkg/logger"
)

// Manager validates and applies build status transitions
type Manager struct {
	builds    store.BuildStore
	events    store.EventStore
	jobs      store.JobStore
	pipelines store.PipelineStore
	scm       scm.SCM
	publisher notify.Publisher
	cascade   *Cascade
	uiURL     string
	admins    map[string]bool
	logger    *logger.Logger
}

// ManagerDeps bundles the collaborators a Manager needs
type ManagerDeps struct {
	Builds    store.BuildStore
	Events    store.EventStore
	Jobs      store.JobStore
	Pipelines store.PipelineStore
	SCM       scm.SCM
	Publisher notify.Publisher
	Cascade   *Cascade
	UIURL     string
	// Admins are platform administrators allowed to abort any build.
	Admins []string
}

// NewManager creates a new build lifecycle manager
func NewManager(deps ManagerDeps, log *logger.Logger) *Manager {
	admins := make(map[string]bool, len(deps.Admins))
	for _, a := range deps.Admins {
		admins[a] = true
	}
	return &Manager{
		builds:    deps.Builds,
		events:    deps.Events,
		jobs:      deps.Jobs,
		pipelines: deps.Pipelines,
		scm:       deps.SCM,
		publisher: deps.Publisher,
		cascade:   deps.Cascade,
		uiURL:     deps.UIURL,
		admins:    admins,
		logger:    log,
	}
}

// UpdateRequest is a requested mutation of one build. Status empty means
// no transition is requested; StatusMessage nil means no message was
// supplied (distinct from an explicit empty message).
type UpdateRequest struct {
	BuildID       int64
	Requester     models.Requester
	Status        models.BuildStatus
	StatusMessage *string
	Meta          map[string]interface{}
	Stats         map[string]interface{}
}

// UpdateBuild validates and applies a status update, persists the build
// and its owning event, emits a build_status notification, and on SUCCESS
// fires the trigger cascade.
func (m *Manager) UpdateBuild(ctx context.Context, req UpdateRequest) (*models.Build, error) {
	build, err := m.builds.Get(ctx, req.BuildID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.NotFound("build %d does not exist", req.BuildID)
		}
		return nil, models.Internal(err, "get build %d", req.BuildID)
	}

	event, err := m.events.Get(ctx, build.EventID)
	if err != nil {
		return nil, models.Internal(err, "get event %s for build %d", build.EventID, build.ID)
	}

	job, err := m.jobs.Get(ctx, build.JobID)
	if err != nil {
		return nil, models.Internal(err, "get job %d for build %d", build.JobID, build.ID)
	}

	pipeline, err := m.pipelines.Get(ctx, job.PipelineID)
	if err != nil {
		return nil, models.Internal(err, "get pipeline %d for job %d", job.PipelineID, job.ID)
	}

	// Terminal builds are immutable.
	if !build.Status.Mutable() {
		return nil, models.Forbidden("build %d cannot be updated in status %s", build.ID, build.Status)
	}

	if err := m.authorize(ctx, req, build, pipeline); err != nil {
		return nil, err
	}

	// Stats are shallow-merged: new keys win, old keys survive. The record
	// is dirty even when the merge changes nothing value-wise.
	if req.Stats != nil {
		if build.Stats == nil {
			build.Stats = make(map[string]interface{}, len(req.Stats))
		}
		for k, v := range req.Stats {
			build.Stats[k] = v
		}
	}

	if req.Status == "" {
		// Message-only update: no transition logic runs.
		if req.StatusMessage != nil {
			build.StatusMessage = *req.StatusMessage
		}
		if err := m.persist(ctx, build, event); err != nil {
			return nil, err
		}
		m.publish(ctx, build, event, pipeline, job)
		return build, nil
	}

	if err := m.applyTransition(req, build, event); err != nil {
		return nil, err
	}

	if err := m.persist(ctx, build, event); err != nil {
		return nil, err
	}

	m.publish(ctx, build, event, pipeline, job)

	if build.Status == models.StatusSuccess {
		// Downstream fan-out is best-effort; the committed transition is
		// not rolled back when a destination fails.
		if err := m.cascade.Run(ctx, pipeline, job, build, req.Requester); err != nil {
			m.logger.Warn("lifecycle: trigger cascade partial failure",
				"build_id", build.ID,
				"pipeline_id", pipeline.ID,
				"error", err)
		}
	}

	return build, nil
}

// authorize enforces who may request which transition
func (m *Manager) authorize(ctx context.Context, req UpdateRequest, build *models.Build, pipeline *models.Pipeline) error {
	if req.Requester.IsBuild() {
		if req.Requester.BuildID() != build.ID {
			return models.Forbidden("build %d may not update build %d", req.Requester.BuildID(), build.ID)
		}
		return nil
	}

	// Humans may only abort.
	if req.Status != models.StatusAborted {
		return models.BadRequest("users can only update a build status to %s", models.StatusAborted)
	}

	if m.admins[req.Requester.Username()] {
		return nil
	}
	perms, err := m.scm.GetPermissions(ctx, req.Requester.Username(), pipeline.ScmURI, pipeline.Token)
	if err != nil {
		return models.Internal(err, "check permissions for %s", req.Requester.Username())
	}
	if !perms.Push {
		return models.Unauthorized("user %s does not have push permission on pipeline %d",
			req.Requester.Username(), pipeline.ID)
	}
	return nil
}

// applyTransition mutates build and event per the transition policy
func (m *Manager) applyTransition(req UpdateRequest, build *models.Build, event *models.Event) error {
	now := time.Now().UTC()

	switch req.Status {
	case models.StatusSuccess, models.StatusFailure, models.StatusAborted:
		meta := req.Meta
		if meta == nil {
			meta = map[string]interface{}{}
		}
		build.Meta = meta
		event.MergeMeta(meta)
		build.EndTime = &now
	case models.StatusRunning:
		build.StartTime = &now
	case models.StatusUnstable, models.StatusBlocked:
		// No timestamp or meta side effects.
	default:
		return models.BadRequest("cannot update build status to %s", req.Status)
	}

	// An UNSTABLE build keeps its status so a downstream quality gate's
	// verdict survives the final completion report, while the timestamp
	// and meta side effects above still land.
	if build.Status != models.StatusUnstable {
		build.Status = req.Status
	}

	if req.Status == models.StatusAborted {
		build.StatusMessage = fmt.Sprintf("Aborted by %s", req.Requester.Display())
	} else if req.StatusMessage != nil {
		build.StatusMessage = *req.StatusMessage
	} else {
		build.StatusMessage = ""
	}

	return nil
}

// persist writes the build and its event concurrently; both must succeed
func (m *Manager) persist(ctx context.Context, build *models.Build, event *models.Event) error {
	var buildErr, eventErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		eventErr = m.events.Update(ctx, event)
	}()
	buildErr = m.builds.Update(ctx, build)
	<-done

	if err := multierr.Combine(buildErr, eventErr); err != nil {
		return models.Internal(err, "persist build %d", build.ID)
	}
	return nil
}

// publish emits the build_status notification. It never blocks or fails
// the update.
func (m *Manager) publish(ctx context.Context, build *models.Build, event *models.Event, pipeline *models.Pipeline, job *models.Job) {
	var settings map[string]interface{}
	if len(job.Permutations) > 0 {
		if s, ok := job.Permutations[0]["settings"].(map[string]interface{}); ok {
			settings = s
		}
	}
	m.publisher.PublishBuildStatus(ctx, notify.BuildStatusEvent{
		Build:     build,
		Event:     event,
		Pipeline:  pipeline,
		JobName:   job.Name,
		Status:    build.Status,
		BuildLink: fmt.Sprintf("%s/pipelines/%d/builds/%d", m.uiURL, pipeline.ID, build.ID),
		Settings:  settings,
	})
}
