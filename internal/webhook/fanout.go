// Package webhook routes inbound source-control notifications to the
// pipelines they affect: push fan-out across branches, event batch
// creation, and the pull-request open/synchronize/close lifecycle.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/internal/store"
	"github.com/lei/screwpipe/internal/trigger"
	"github.com/lei/screwpipe/pkg/logger"
)

// Resolver enumerates every pipeline affected by a change on one branch
// of a repository.
type Resolver struct {
	pipelines store.PipelineStore
	scm       scm.SCM
	token     string // service-level SCM credential for branch discovery
	logger    *logger.Logger
}

// NewResolver creates a new branch fan-out resolver
func NewResolver(pipelines store.PipelineStore, s scm.SCM, token string, log *logger.Logger) *Resolver {
	return &Resolver{pipelines: pipelines, scm: s, token: token, logger: log}
}

// Resolve returns the pipelines whose workflow graphs subscribe to the
// changed branch, plus the pipeline registered at the changed branch
// itself. The pushed-branch pipeline is always a candidate regardless of
// its graph contents.
func (r *Resolver) Resolve(ctx context.Context, checkoutURL, changedBranch string, kind trigger.Kind) ([]*models.Pipeline, error) {
	pushedURI, err := r.scm.ParseURL(ctx, checkoutURL, changedBranch, r.token)
	if err != nil {
		return nil, fmt.Errorf("parse checkout url: %w", err)
	}

	branches, err := r.scm.ListBranches(ctx, pushedURI, r.token)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	subscribeToken := trigger.Token{Kind: kind, Branch: changedBranch}.String()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		pipelines []*models.Pipeline
		errs      error
	)
	for _, branch := range branches {
		if branch == changedBranch {
			continue
		}
		wg.Add(1)
		go func(branch string) {
			defer wg.Done()
			p, err := r.lookupSubscriber(ctx, checkoutURL, branch, subscribeToken)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("branch %s: %w", branch, err))
				return
			}
			if p != nil {
				pipelines = append(pipelines, p)
			}
		}(branch)
	}
	wg.Wait()

	if errs != nil {
		return nil, errs
	}

	pushed, err := r.pipelines.GetByScmURI(ctx, pushedURI)
	switch {
	case err == nil:
		pipelines = append(pipelines, pushed)
	case errors.Is(err, store.ErrNotFound):
		r.logger.Debug("fanout: no pipeline at pushed branch",
			"scm_uri", pushedURI,
			"branch", changedBranch)
	default:
		return nil, fmt.Errorf("lookup pushed-branch pipeline: %w", err)
	}

	return pipelines, nil
}

// lookupSubscriber returns the pipeline at the given branch if its
// workflow graph has a job reachable from the subscribe token, nil when
// no pipeline is registered there or none of its jobs subscribe.
func (r *Resolver) lookupSubscriber(ctx context.Context, checkoutURL, branch, subscribeToken string) (*models.Pipeline, error) {
	uri, err := r.scm.ParseURL(ctx, checkoutURL, branch, r.token)
	if err != nil {
		return nil, err
	}
	p, err := r.pipelines.GetByScmURI(ctx, uri)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(p.Workflow.Triggers(subscribeToken)) == 0 {
		return nil, nil
	}
	return p, nil
}
