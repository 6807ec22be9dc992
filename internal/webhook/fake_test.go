package webhook

import (
	"context"

	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/internal/store"
	"github.com/lei/screwpipe/pkg/logger"
)

// fakeSCM answers SCM queries with canned data. scmURIs are derived from
// the branch alone, matching how the tests seed their pipelines.
type fakeSCM struct {
	hook     *scm.HookPayload
	hookErr  error
	branches []string
	shas     map[string]string // scmURI -> head sha
	changed  []string
	prInfo   map[string]interface{}
}

func (f *fakeSCM) ParseHook(ctx context.Context, headers map[string]string, payload []byte) (*scm.HookPayload, error) {
	return f.hook, f.hookErr
}

func (f *fakeSCM) ParseURL(ctx context.Context, checkoutURL, branch, token string) (string, error) {
	return "github.com:org/app:" + branch, nil
}

func (f *fakeSCM) ListBranches(ctx context.Context, scmURI, token string) ([]string, error) {
	return f.branches, nil
}

func (f *fakeSCM) GetCommitSHA(ctx context.Context, scmURI, token string) (string, error) {
	if sha, ok := f.shas[scmURI]; ok {
		return sha, nil
	}
	return "abc123", nil
}

func (f *fakeSCM) GetChangedFiles(ctx context.Context, hook *scm.HookPayload, token string) ([]string, error) {
	return f.changed, nil
}

func (f *fakeSCM) GetPRInfo(ctx context.Context, scmURI string, prNum int, token string) (map[string]interface{}, error) {
	return f.prInfo, nil
}

func (f *fakeSCM) GetPermissions(ctx context.Context, username, scmURI, token string) (scm.Permissions, error) {
	return scm.Permissions{}, nil
}

// newTestRouter wires a full webhook stack over the given fakes, with the
// changed-files delay disabled.
func newTestRouter(fake *fakeSCM, pipelines *store.MemoryPipelines, jobs *store.MemoryJobs, builds *store.MemoryBuilds, events *store.MemoryEvents, ignored []string) *Router {
	log := logger.NewNop()
	resolver := NewResolver(pipelines, fake, "svc-token", log)
	creator := NewBatchCreator(events, fake, log)
	prs := NewPRLifecycle(pipelines, jobs, builds, nil, resolver, creator, fake, "svc-token", log)
	r := NewRouter(fake, resolver, creator, prs, ignored, "svc-token", log)
	r.ChangedFilesDelay = 0
	return r
}
