// Package scm defines the narrow interface through which the orchestration
// core talks to a source-control backend. The core never parses provider
// payloads or builds provider URLs itself.
package scm

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the referenced SCM resource doesn't exist
	ErrNotFound = errors.New("scm resource not found")
	// ErrUnavailable indicates the SCM backend is temporarily unavailable
	ErrUnavailable = errors.New("scm temporarily unavailable")
)

// HookType classifies an inbound notification
type HookType string

const (
	HookTypePush HookType = "push"
	HookTypePR   HookType = "pr"
)

// PRAction is the pull-request lifecycle action carried by a pr hook
type PRAction string

const (
	ActionOpened       PRAction = "opened"
	ActionReopened     PRAction = "reopened"
	ActionSynchronized PRAction = "synchronized"
	ActionClosed       PRAction = "closed"
)

// PRSource describes where a pull request originates
type PRSource string

const (
	SourceBranch PRSource = "branch"
	SourceFork   PRSource = "fork"
)

// HookPayload is a normalized inbound push or pull-request notification
type HookPayload struct {
	Type        HookType
	Action      PRAction
	Username    string
	CheckoutURL string
	Branch      string
	SHA         string
	PRNum       int
	PRRef       string
	PRSource    PRSource
	LastMessage string // last commit message, used for skip markers
	HookID      string
}

// Permissions is a user's access level against one repository
type Permissions struct {
	Push  bool
	Admin bool
}

// SCM abstracts the source-control backend. scmURI values encode
// repository plus branch and are produced only by ParseURL.
type SCM interface {
	// ParseHook normalizes a raw webhook delivery. A nil payload with a
	// nil error means the delivery is not something this backend handles.
	ParseHook(ctx context.Context, headers map[string]string, payload []byte) (*HookPayload, error)

	// ParseURL resolves a checkout URL plus branch into an scmURI.
	ParseURL(ctx context.Context, checkoutURL, branch, token string) (string, error)

	// ListBranches lists all branches of the repository behind scmURI.
	ListBranches(ctx context.Context, scmURI, token string) ([]string, error)

	// GetCommitSHA returns the latest commit sha on the scmURI's branch.
	GetCommitSHA(ctx context.Context, scmURI, token string) (string, error)

	// GetChangedFiles returns the files touched by the hook's change set.
	GetChangedFiles(ctx context.Context, hook *HookPayload, token string) ([]string, error)

	// GetPRInfo returns display metadata for a pull request.
	GetPRInfo(ctx context.Context, scmURI string, prNum int, token string) (map[string]interface{}, error)

	// GetPermissions returns the user's access against the repository.
	GetPermissions(ctx context.Context, username, scmURI, token string) (Permissions, error)
}
