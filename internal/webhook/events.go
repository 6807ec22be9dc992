package webhook

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

// Cause carries the metadata of one triggering change, shared by every
// event created for it.
type Cause struct {
	Branch       string
	SHA          string
	Username     string
	SCMContext   string
	ChangedFiles []string
	HookID       string
	PR           *PRCause // nil for push flows
}

// PRCause is the pull-request part of a Cause
type PRCause struct {
	Num    int
	Ref    string
	Action scm.PRAction
}

func (c Cause) message() string {
	if c.PR != nil {
		return fmt.Sprintf("PR#%d %s by %s", c.PR.Num, c.PR.Action, c.Username)
	}
	return fmt.Sprintf("Committed by %s", c.Username)
}

// BatchCreator creates one execution event per affected pipeline
type BatchCreator struct {
	events store.EventStore
	scm    scm.SCM
	logger *logger.Logger
}

// NewBatchCreator creates a new event batch creator
func NewBatchCreator(events store.EventStore, s scm.SCM, log *logger.Logger) *BatchCreator {
	return &BatchCreator{events: events, scm: s, logger: log}
}

// Create creates one event per pipeline, concurrently. Pipelines are
// independent: a failure on one does not block the others, and the
// returned error aggregates every per-pipeline failure alongside the
// events that were created.
func (b *BatchCreator) Create(ctx context.Context, pipelines []*models.Pipeline, cause Cause) ([]*models.Event, error) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		events []*models.Event
		errs   error
	)
	for _, p := range pipelines {
		wg.Add(1)
		go func(p *models.Pipeline) {
			defer wg.Done()
			ev, err := b.createOne(ctx, p, cause)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("pipeline %d: %w", p.ID, err))
				return
			}
			events = append(events, ev)
		}(p)
	}
	wg.Wait()
	return events, errs
}

// createOne resolves per-pipeline pinned commit state and creates the event
func (b *BatchCreator) createOne(ctx context.Context, p *models.Pipeline, cause Cause) (*models.Event, error) {
	sameBranch := p.Branch == cause.Branch

	qualifier := cause.Branch
	if sameBranch {
		qualifier = ""
	}
	var startFrom trigger.Token
	if cause.PR != nil {
		startFrom = trigger.PR(qualifier)
	} else {
		startFrom = trigger.Commit(qualifier)
	}

	// The pipeline configuration is pinned to the pipeline's own branch,
	// which may differ from the branch that changed.
	configSHA, err := b.scm.GetCommitSHA(ctx, p.ScmURI, p.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve config sha: %w", err)
	}

	event := &models.Event{
		PipelineID:        p.ID,
		Type:              models.EventTypePipeline,
		SHA:               cause.SHA,
		ConfigPipelineSHA: configSHA,
		StartFrom:         startFrom.String(),
		CauseMessage:      cause.message(),
		Creator:           cause.Username,
		ChangedFiles:      cause.ChangedFiles,
	}

	// Only the pipeline on the PR's own branch runs PR jobs; cross-branch
	// subscribers get a plain pipeline event with a pr trigger token.
	if cause.PR != nil && sameBranch {
		event.Type = models.EventTypePR
		event.PRNum = cause.PR.Num
		event.PRRef = cause.PR.Ref
		info, err := b.scm.GetPRInfo(ctx, p.ScmURI, cause.PR.Num, p.Token)
		if err != nil {
			return nil, fmt.Errorf("get pr info: %w", err)
		}
		event.PRInfo = info
	}

	created, err := b.events.Create(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	b.logger.Info("webhook: event created",
		"pipeline_id", p.ID,
		"event_id", created.ID,
		"type", created.Type,
		"start_from", created.StartFrom,
		"hook_id", cause.HookID)
	return created, nil
}
