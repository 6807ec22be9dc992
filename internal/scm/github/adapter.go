// Package github implements the scm interface over the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/pkg/logger"
)

// Adapter implements scm.SCM for GitHub
type Adapter struct {
	client     *Client
	scmContext string
	logger     *logger.Logger
}

// Config contains GitHub connection settings
type Config struct {
	// APIBase overrides the API endpoint, for GitHub Enterprise.
	APIBase string
	// Context names this backend in scmURI values, e.g. "github.com".
	Context string
}

// NewAdapter creates a new GitHub adapter
func NewAdapter(cfg *Config, log *logger.Logger) *Adapter {
	scmContext := cfg.Context
	if scmContext == "" {
		scmContext = "github.com"
	}
	return &Adapter{
		client:     NewClient(cfg.APIBase, log),
		scmContext: scmContext,
		logger:     log,
	}
}

// repoRef is a parsed scmURI: <context>:<org>/<repo>:<branch>
type repoRef struct {
	context string
	slug    string // org/repo
	branch  string
}

func parseRepoRef(scmURI string) (repoRef, error) {
	parts := strings.SplitN(scmURI, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return repoRef{}, fmt.Errorf("invalid scm uri %q, expected context:org/repo:branch", scmURI)
	}
	return repoRef{context: parts[0], slug: parts[1], branch: parts[2]}, nil
}

func (r repoRef) String() string {
	return fmt.Sprintf("%s:%s:%s", r.context, r.slug, r.branch)
}

// ParseURL implements scm.SCM.ParseURL
func (a *Adapter) ParseURL(ctx context.Context, checkoutURL, branch, token string) (string, error) {
	slug, err := parseCheckoutURL(checkoutURL)
	if err != nil {
		return "", err
	}
	if branch == "" {
		branch = "main"
	}
	return repoRef{context: a.scmContext, slug: slug, branch: branch}.String(), nil
}

// parseCheckoutURL extracts org/repo from https and ssh checkout URLs
func parseCheckoutURL(checkoutURL string) (string, error) {
	s := strings.TrimSuffix(checkoutURL, ".git")
	switch {
	case strings.HasPrefix(s, "git@"):
		// git@github.com:org/repo
		if i := strings.IndexByte(s, ':'); i >= 0 {
			return s[i+1:], nil
		}
	case strings.Contains(s, "://"):
		// https://github.com/org/repo
		rest := s[strings.Index(s, "://")+3:]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return rest[i+1:], nil
		}
	}
	return "", fmt.Errorf("unrecognized checkout url %q", checkoutURL)
}

// ParseHook implements scm.SCM.ParseHook. Unrecognized deliveries return
// (nil, nil) so the router can no-op.
func (a *Adapter) ParseHook(ctx context.Context, headers map[string]string, payload []byte) (*scm.HookPayload, error) {
	event := headers["X-Github-Event"]
	hookID := headers["X-Github-Delivery"]

	switch event {
	case "push":
		var p pushPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("parse push payload: %w", err)
		}
		branch := strings.TrimPrefix(p.Ref, "refs/heads/")
		if branch == p.Ref {
			// Tag or other ref; not a branch push.
			return nil, nil
		}
		hook := &scm.HookPayload{
			Type:        scm.HookTypePush,
			Username:    p.Sender.Login,
			CheckoutURL: p.Repository.CloneURL,
			Branch:      branch,
			SHA:         p.After,
			HookID:      hookID,
		}
		if p.HeadCommit != nil {
			hook.LastMessage = p.HeadCommit.Message
		}
		return hook, nil

	case "pull_request":
		var p prPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("parse pull_request payload: %w", err)
		}
		action, ok := prActions[p.Action]
		if !ok {
			return nil, nil
		}
		source := scm.SourceBranch
		if p.PullRequest.Head.Repo.FullName != p.Repository.FullName {
			source = scm.SourceFork
		}
		// pull_request deliveries carry no commit message, only the PR
		// title. LastMessage stays empty so skip markers apply to pushes.
		return &scm.HookPayload{
			Type:        scm.HookTypePR,
			Action:      action,
			Username:    p.Sender.Login,
			CheckoutURL: p.Repository.CloneURL,
			Branch:      p.PullRequest.Base.Ref,
			SHA:         p.PullRequest.Head.SHA,
			PRNum:       p.Number,
			PRRef:       p.PullRequest.Head.Ref,
			PRSource:    source,
			HookID:      hookID,
		}, nil
	}

	a.logger.Debug("scm: ignoring hook event", "event", event, "hook_id", hookID)
	return nil, nil
}

var prActions = map[string]scm.PRAction{
	"opened":      scm.ActionOpened,
	"reopened":    scm.ActionReopened,
	"synchronize": scm.ActionSynchronized,
	"closed":      scm.ActionClosed,
}

// ListBranches implements scm.SCM.ListBranches
func (a *Adapter) ListBranches(ctx context.Context, scmURI, token string) ([]string, error) {
	ref, err := parseRepoRef(scmURI)
	if err != nil {
		return nil, err
	}
	var branches []struct {
		Name string `json:"name"`
	}
	path := fmt.Sprintf("/repos/%s/branches?per_page=100", ref.slug)
	if err := a.client.getJSON(ctx, path, token, &branches); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	names := make([]string, len(branches))
	for i, b := range branches {
		names[i] = b.Name
	}
	return names, nil
}

// GetCommitSHA implements scm.SCM.GetCommitSHA
func (a *Adapter) GetCommitSHA(ctx context.Context, scmURI, token string) (string, error) {
	ref, err := parseRepoRef(scmURI)
	if err != nil {
		return "", err
	}
	var commit struct {
		SHA string `json:"sha"`
	}
	path := fmt.Sprintf("/repos/%s/commits/%s", ref.slug, ref.branch)
	if err := a.client.getJSON(ctx, path, token, &commit); err != nil {
		return "", fmt.Errorf("get commit sha: %w", err)
	}
	return commit.SHA, nil
}

// GetChangedFiles implements scm.SCM.GetChangedFiles
func (a *Adapter) GetChangedFiles(ctx context.Context, hook *scm.HookPayload, token string) ([]string, error) {
	slug, err := parseCheckoutURL(hook.CheckoutURL)
	if err != nil {
		return nil, err
	}

	if hook.Type == scm.HookTypePR {
		var files []struct {
			Filename string `json:"filename"`
		}
		path := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=100", slug, hook.PRNum)
		if err := a.client.getJSON(ctx, path, token, &files); err != nil {
			return nil, fmt.Errorf("get changed files: %w", err)
		}
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Filename
		}
		return names, nil
	}

	var commit struct {
		Files []struct {
			Filename string `json:"filename"`
		} `json:"files"`
	}
	path := fmt.Sprintf("/repos/%s/commits/%s", slug, hook.SHA)
	if err := a.client.getJSON(ctx, path, token, &commit); err != nil {
		return nil, fmt.Errorf("get changed files: %w", err)
	}
	names := make([]string, len(commit.Files))
	for i, f := range commit.Files {
		names[i] = f.Filename
	}
	return names, nil
}

// GetPRInfo implements scm.SCM.GetPRInfo
func (a *Adapter) GetPRInfo(ctx context.Context, scmURI string, prNum int, token string) (map[string]interface{}, error) {
	ref, err := parseRepoRef(scmURI)
	if err != nil {
		return nil, err
	}
	var pr struct {
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
		User    struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	path := fmt.Sprintf("/repos/%s/pulls/%d", ref.slug, prNum)
	if err := a.client.getJSON(ctx, path, token, &pr); err != nil {
		return nil, fmt.Errorf("get pr info: %w", err)
	}
	return map[string]interface{}{
		"title":  pr.Title,
		"url":    pr.HTMLURL,
		"author": pr.User.Login,
	}, nil
}

// GetPermissions implements scm.SCM.GetPermissions
func (a *Adapter) GetPermissions(ctx context.Context, username, scmURI, token string) (scm.Permissions, error) {
	ref, err := parseRepoRef(scmURI)
	if err != nil {
		return scm.Permissions{}, err
	}
	var perm struct {
		Permission string `json:"permission"` // admin, write, read, none
	}
	path := fmt.Sprintf("/repos/%s/collaborators/%s/permission", ref.slug, username)
	if err := a.client.getJSON(ctx, path, token, &perm); err != nil {
		return scm.Permissions{}, fmt.Errorf("get permissions: %w", err)
	}
	return scm.Permissions{
		Push:  perm.Permission == "write" || perm.Permission == "admin",
		Admin: perm.Permission == "admin",
	}, nil
}

// pushPayload is the subset of GitHub's push delivery the adapter reads
type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	HeadCommit *struct {
		Message string `json:"message"`
	} `json:"head_commit"`
}

// prPayload is the subset of GitHub's pull_request delivery the adapter reads
type prPayload struct {
	Action     string `json:"action"`
	Number     int    `json:"number"`
	Repository struct {
		FullName string `json:"full_name"`
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	PullRequest struct {
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			Ref  string `json:"ref"`
			SHA  string `json:"sha"`
			Repo struct {
				FullName string `json:"full_name"`
			} `json:"repo"`
		} `json:"head"`
	} `json:"pull_request"`
}
