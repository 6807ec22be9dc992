package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/internal/store"
	"github.com/lei/screwpipe/internal/trigger"
	"github.com/lei/screwpipe/pkg/logger"
)

// PipelineSyncer refreshes a pipeline's jobs and workflow graph from the
// SCM source of truth. Owned by the pipeline configuration subsystem.
type PipelineSyncer interface {
	Sync(ctx context.Context, pipeline *models.Pipeline) error
}

// NopSyncer is a PipelineSyncer that does nothing
type NopSyncer struct{}

func (NopSyncer) Sync(ctx context.Context, pipeline *models.Pipeline) error {
	return nil
}

// PRLifecycle handles pull-request open, synchronize and close hooks
type PRLifecycle struct {
	pipelines store.PipelineStore
	jobs      store.JobStore
	builds    store.BuildStore
	syncer    PipelineSyncer
	resolver  *Resolver
	creator   *BatchCreator
	scm       scm.SCM
	token     string
	logger    *logger.Logger
}

// NewPRLifecycle creates a new pull-request lifecycle handler
func NewPRLifecycle(pipelines store.PipelineStore, jobs store.JobStore, builds store.BuildStore, syncer PipelineSyncer, resolver *Resolver, creator *BatchCreator, s scm.SCM, token string, log *logger.Logger) *PRLifecycle {
	if syncer == nil {
		syncer = NopSyncer{}
	}
	return &PRLifecycle{
		pipelines: pipelines,
		jobs:      jobs,
		builds:    builds,
		syncer:    syncer,
		resolver:  resolver,
		creator:   creator,
		scm:       s,
		token:     token,
		logger:    log,
	}
}

// Handle dispatches a pull-request hook by its action
func (l *PRLifecycle) Handle(ctx context.Context, hook *scm.HookPayload, changedFiles []string) (*Outcome, error) {
	uri, err := l.scm.ParseURL(ctx, hook.CheckoutURL, hook.Branch, l.token)
	if err != nil {
		return nil, models.Internal(err, "parse checkout url")
	}

	pipeline, err := l.pipelines.GetByScmURI(ctx, uri)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.logger.Info("webhook: no pipeline registered for pr",
				"scm_uri", uri,
				"pr_num", hook.PRNum,
				"hook_id", hook.HookID)
			return &Outcome{Status: http.StatusNoContent}, nil
		}
		return nil, models.Internal(err, "lookup pipeline for %s", uri)
	}

	switch hook.Action {
	case scm.ActionOpened, scm.ActionReopened:
		return l.opened(ctx, pipeline, hook, changedFiles)
	case scm.ActionSynchronized:
		return l.synchronized(ctx, pipeline, hook, changedFiles)
	case scm.ActionClosed:
		return l.closed(ctx, pipeline, hook)
	}
	return nil, models.BadRequest("unsupported pull request action %q", hook.Action)
}

// opened handles opened and reopened pull requests
func (l *PRLifecycle) opened(ctx context.Context, pipeline *models.Pipeline, hook *scm.HookPayload, changedFiles []string) (*Outcome, error) {
	if err := l.syncer.Sync(ctx, pipeline); err != nil {
		return nil, models.Internal(err, "sync pipeline %d", pipeline.ID)
	}
	if l.restricted(pipeline, hook) {
		return &Outcome{Status: http.StatusNoContent}, nil
	}
	return l.createEvents(ctx, hook, changedFiles)
}

// synchronized handles a new commit pushed to an open pull request
func (l *PRLifecycle) synchronized(ctx context.Context, pipeline *models.Pipeline, hook *scm.HookPayload, changedFiles []string) (*Outcome, error) {
	if l.restricted(pipeline, hook) {
		return &Outcome{Status: http.StatusNoContent}, nil
	}

	message := fmt.Sprintf("Aborted because a new commit was pushed to PR#%d", hook.PRNum)
	if err := l.stopPRJobs(ctx, pipeline, hook.PRNum, message, false); err != nil {
		l.logger.Warn("webhook: failed to stop superseded pr builds",
			"pipeline_id", pipeline.ID,
			"pr_num", hook.PRNum,
			"error", err)
	}

	return l.createEvents(ctx, hook, changedFiles)
}

// closed stops the PR's builds and archives its jobs
func (l *PRLifecycle) closed(ctx context.Context, pipeline *models.Pipeline, hook *scm.HookPayload) (*Outcome, error) {
	message := fmt.Sprintf("Aborted because PR#%d was closed", hook.PRNum)
	if err := l.stopPRJobs(ctx, pipeline, hook.PRNum, message, true); err != nil {
		return nil, models.Internal(err, "close PR#%d on pipeline %d", hook.PRNum, pipeline.ID)
	}
	return &Outcome{Status: http.StatusNoContent}, nil
}

// restricted evaluates the pipeline's origin-restriction annotation
// against the PR's origin.
func (l *PRLifecycle) restricted(pipeline *models.Pipeline, hook *scm.HookPayload) bool {
	policy := pipeline.RestrictPR()
	blocked := false
	switch policy {
	case models.RestrictPRAll:
		blocked = true
	case models.RestrictPRBranch:
		blocked = hook.PRSource == scm.SourceBranch
	case models.RestrictPRFork:
		blocked = hook.PRSource == scm.SourceFork
	}
	if blocked {
		l.logger.Info("webhook: pr restricted by pipeline policy",
			"pipeline_id", pipeline.ID,
			"policy", policy,
			"pr_source", hook.PRSource,
			"pr_num", hook.PRNum)
	}
	return blocked
}

// createEvents resolves fan-out pipelines and creates events for the PR
func (l *PRLifecycle) createEvents(ctx context.Context, hook *scm.HookPayload, changedFiles []string) (*Outcome, error) {
	pipelines, err := l.resolver.Resolve(ctx, hook.CheckoutURL, hook.Branch, trigger.KindPR)
	if err != nil {
		return nil, models.Internal(err, "resolve pr fan-out")
	}
	if len(pipelines) == 0 {
		return &Outcome{Status: http.StatusNoContent}, nil
	}

	cause := Cause{
		Branch:       hook.Branch,
		SHA:          hook.SHA,
		Username:     hook.Username,
		ChangedFiles: changedFiles,
		HookID:       hook.HookID,
		PR: &PRCause{
			Num:    hook.PRNum,
			Ref:    hook.PRRef,
			Action: hook.Action,
		},
	}
	events, err := l.creator.Create(ctx, pipelines, cause)
	if err != nil {
		if len(events) == 0 {
			return nil, models.Internal(err, "create pr events")
		}
		l.logger.Warn("webhook: partial pr event creation",
			"created", len(events),
			"pr_num", hook.PRNum,
			"error", err)
	}
	if len(events) == 0 {
		return &Outcome{Status: http.StatusNoContent}, nil
	}
	return &Outcome{Status: http.StatusCreated, Events: events}, nil
}

// stopPRJobs aborts the non-terminal builds of every job belonging to
// the PR, optionally archiving the jobs afterwards. Jobs are processed
// independently; the returned error aggregates per-job failures.
func (l *PRLifecycle) stopPRJobs(ctx context.Context, pipeline *models.Pipeline, prNum int, message string, archive bool) error {
	jobs, err := l.jobs.ListByPipeline(ctx, pipeline.ID)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, job := range jobs {
		if job.PRNumber() != prNum {
			continue
		}
		wg.Add(1)
		go func(job *models.Job) {
			defer wg.Done()
			err := l.stopJobBuilds(ctx, job, message)
			if err == nil && archive {
				job.Archived = true
				if uerr := l.jobs.Update(ctx, job); uerr != nil {
					err = fmt.Errorf("archive: %w", uerr)
				}
			}
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("job %s: %w", job.Name, err))
				mu.Unlock()
			}
		}(job)
	}
	wg.Wait()
	return errs
}

// stopJobBuilds aborts the job's builds that are still in a mutable
// status. Builds already terminal are left untouched, so stopping is
// idempotent.
func (l *PRLifecycle) stopJobBuilds(ctx context.Context, job *models.Job, message string) error {
	builds, err := l.builds.ListActiveByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list active builds: %w", err)
	}

	var errs error
	for _, build := range builds {
		if !build.Status.Mutable() {
			continue
		}
		now := time.Now().UTC()
		build.Status = models.StatusAborted
		build.StatusMessage = message
		build.EndTime = &now
		if err := l.builds.Update(ctx, build); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("abort build %d: %w", build.ID, err))
			continue
		}
		l.logger.Info("webhook: build aborted",
			"build_id", build.ID,
			"job_name", job.Name,
			"reason", message)
	}
	return errs
}
