package webhook

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/internal/trigger"
	"github.com/lei/screwpipe/pkg/logger"
)

// DefaultChangedFilesDelay is how long the router waits before asking
// the SCM for the changed-file list. Some backends compute diff metadata
// asynchronously after the hook fires and don't have it ready at
// delivery time.
const DefaultChangedFilesDelay = 2 * time.Second

// Skip markers suppress event creation when present in the last commit
// message.
var skipMarkers = []string{"[skip ci]", "[ci skip]"}

// Outcome is the HTTP response descriptor a handled hook resolves to
type Outcome struct {
	Status int
	Events []*models.Event
}

// Router is the top-level webhook dispatcher
type Router struct {
	scm          scm.SCM
	resolver     *Resolver
	creator      *BatchCreator
	prs          *PRLifecycle
	ignoredUsers map[string]bool
	token        string

	// ChangedFilesDelay is fixed per router, not per call. Tests zero it.
	ChangedFilesDelay time.Duration

	logger *logger.Logger
}

// NewRouter creates a new webhook event router
func NewRouter(s scm.SCM, resolver *Resolver, creator *BatchCreator, prs *PRLifecycle, ignoredUsers []string, token string, log *logger.Logger) *Router {
	ignored := make(map[string]bool, len(ignoredUsers))
	for _, u := range ignoredUsers {
		ignored[u] = true
	}
	return &Router{
		scm:               s,
		resolver:          resolver,
		creator:           creator,
		prs:               prs,
		ignoredUsers:      ignored,
		token:             token,
		ChangedFilesDelay: DefaultChangedFilesDelay,
		logger:            log,
	}
}

// Handle normalizes an inbound notification, applies the global
// suppression rules, and routes it to push or pull-request handling.
func (r *Router) Handle(ctx context.Context, headers map[string]string, payload []byte) (*Outcome, error) {
	hook, err := r.scm.ParseHook(ctx, headers, payload)
	if err != nil {
		return nil, models.Internal(err, "parse hook")
	}
	if hook == nil {
		r.logger.Debug("webhook: unrecognized delivery ignored")
		return &Outcome{Status: http.StatusNoContent}, nil
	}

	for _, marker := range skipMarkers {
		if strings.Contains(hook.LastMessage, marker) {
			r.logger.Info("webhook: skipped by commit marker",
				"marker", marker,
				"hook_id", hook.HookID)
			return &Outcome{Status: http.StatusNoContent}, nil
		}
	}

	if r.ignoredUsers[hook.Username] {
		r.logger.Info("webhook: ignoring user",
			"username", hook.Username,
			"hook_id", hook.HookID)
		return &Outcome{Status: http.StatusNoContent}, nil
	}

	if r.ChangedFilesDelay > 0 {
		select {
		case <-time.After(r.ChangedFilesDelay):
		case <-ctx.Done():
			return nil, models.Internal(ctx.Err(), "wait for changed files")
		}
	}
	changedFiles, err := r.scm.GetChangedFiles(ctx, hook, r.token)
	if err != nil {
		return nil, models.Internal(err, "get changed files")
	}

	if hook.Type == scm.HookTypePR {
		return r.prs.Handle(ctx, hook, changedFiles)
	}
	return r.handlePush(ctx, hook, changedFiles)
}

// handlePush fans a branch push out to its affected pipelines
func (r *Router) handlePush(ctx context.Context, hook *scm.HookPayload, changedFiles []string) (*Outcome, error) {
	pipelines, err := r.resolver.Resolve(ctx, hook.CheckoutURL, hook.Branch, trigger.KindCommit)
	if err != nil {
		return nil, models.Internal(err, "resolve push fan-out")
	}
	if len(pipelines) == 0 {
		r.logger.Info("webhook: no pipelines affected by push",
			"branch", hook.Branch,
			"hook_id", hook.HookID)
		return &Outcome{Status: http.StatusNoContent}, nil
	}

	cause := Cause{
		Branch:       hook.Branch,
		SHA:          hook.SHA,
		Username:     hook.Username,
		ChangedFiles: changedFiles,
		HookID:       hook.HookID,
	}
	events, err := r.creator.Create(ctx, pipelines, cause)
	if err != nil {
		if len(events) == 0 {
			return nil, models.Internal(err, "create push events")
		}
		// Successes stay committed; report and move on.
		r.logger.Warn("webhook: partial push event creation",
			"created", len(events),
			"hook_id", hook.HookID,
			"error", err)
	}
	if len(events) == 0 {
		return &Outcome{Status: http.StatusNoContent}, nil
	}
	return &Outcome{Status: http.StatusCreated, Events: events}, nil
}
