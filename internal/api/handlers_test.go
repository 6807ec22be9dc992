package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lei/screwpipe/internal/config"
	"github.com/lei/screwpipe/internal/lifecycle"
	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/notify"
	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/internal/store"
	"github.com/lei/screwpipe/internal/webhook"
	"github.com/lei/screwpipe/pkg/logger"
)

// fakeSCM answers SCM queries with canned data.
type fakeSCM struct {
	hook     *scm.HookPayload
	branches []string
	perms    scm.Permissions
}

func (f *fakeSCM) ParseHook(ctx context.Context, headers map[string]string, payload []byte) (*scm.HookPayload, error) {
	return f.hook, nil
}

func (f *fakeSCM) ParseURL(ctx context.Context, checkoutURL, branch, token string) (string, error) {
	return "github.com:org/app:" + branch, nil
}

func (f *fakeSCM) ListBranches(ctx context.Context, scmURI, token string) ([]string, error) {
	return f.branches, nil
}

func (f *fakeSCM) GetCommitSHA(ctx context.Context, scmURI, token string) (string, error) {
	return "cafebabe", nil
}

func (f *fakeSCM) GetChangedFiles(ctx context.Context, hook *scm.HookPayload, token string) ([]string, error) {
	return nil, nil
}

func (f *fakeSCM) GetPRInfo(ctx context.Context, scmURI string, prNum int, token string) (map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeSCM) GetPermissions(ctx context.Context, username, scmURI, token string) (scm.Permissions, error) {
	return f.perms, nil
}

type testServer struct {
	router http.Handler
	events *store.MemoryEvents
}

// newTestServer wires the full HTTP stack over in-memory stores, seeded
// with pipeline 5 (job "main", build 77 RUNNING) triggering pipeline 9.
func newTestServer(t *testing.T, fake *fakeSCM) *testServer {
	t.Helper()
	ctx := context.Background()

	pipelines := store.NewMemoryPipelines(
		&models.Pipeline{ID: 5, ScmURI: "github.com:org/app:main", Branch: "main"},
		&models.Pipeline{ID: 9, ScmURI: "github.com:org/deploy:main", Branch: "main"},
	)
	jobs := store.NewMemoryJobs(
		&models.Job{ID: 1, PipelineID: 5, Name: "main"},
	)
	builds := store.NewMemoryBuilds()
	events := store.NewMemoryEvents()
	triggers := store.NewMemoryTriggers()

	if _, err := triggers.Create(ctx, &models.TriggerRecord{Src: "~sd@5:main", Dest: "~sd@9:deploy"}); err != nil {
		t.Fatalf("seed trigger: %v", err)
	}
	event, err := events.Create(ctx, &models.Event{PipelineID: 5, Type: models.EventTypePipeline})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	if _, err := builds.Create(ctx, &models.Build{ID: 77, JobID: 1, EventID: event.ID, Status: models.StatusRunning}); err != nil {
		t.Fatalf("seed build: %v", err)
	}

	log := logger.NewNop()
	cascade := lifecycle.NewCascade(triggers, events, pipelines, fake, nil, log)
	manager := lifecycle.NewManager(lifecycle.ManagerDeps{
		Builds:    builds,
		Events:    events,
		Jobs:      jobs,
		Pipelines: pipelines,
		SCM:       fake,
		Publisher: notifyNop{},
		Cascade:   cascade,
		UIURL:     "http://ci.example.com",
	}, log)

	resolver := webhook.NewResolver(pipelines, fake, "svc-token", log)
	creator := webhook.NewBatchCreator(events, fake, log)
	prs := webhook.NewPRLifecycle(pipelines, jobs, builds, nil, resolver, creator, fake, "svc-token", log)
	hooks := webhook.NewRouter(fake, resolver, creator, prs, nil, "svc-token", log)
	hooks.ChangedFilesDelay = 0

	handlers := NewHandlers(manager, hooks)
	auth := NewAuthMiddleware([]config.APIKey{{Name: "octocat", Key: "human-key"}}, "s3cret", "github.com")
	router := NewRouter(handlers, auth, NewLoggingMiddleware(log))

	return &testServer{router: router, events: events}
}

type notifyNop struct{}

func (notifyNop) PublishBuildStatus(ctx context.Context, e notify.BuildStatusEvent) {}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeSCM{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestUpdateBuildEndpoint(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, &fakeSCM{perms: scm.Permissions{Push: true}})

	body := strings.NewReader(`{"status": "SUCCESS", "meta": {"coverage": 92}}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/builds/77", body)
	req.Header.Set("Authorization", "Bearer build:77:s3cret")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Build models.Build `json:"build"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Build.Status != models.StatusSuccess {
		t.Errorf("build status = %s, want SUCCESS", resp.Build.Status)
	}

	// The success cascaded to the downstream pipeline.
	downstream, _ := ts.events.ListByPipeline(ctx, 9)
	if len(downstream) != 1 {
		t.Errorf("cascade created %d events on pipeline 9, want 1", len(downstream))
	}
}

func TestUpdateBuildAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
		want   int
	}{
		{"missing header", "", `{"status": "SUCCESS"}`, http.StatusUnauthorized},
		{"not bearer", "Basic abc", `{"status": "SUCCESS"}`, http.StatusUnauthorized},
		{"wrong build secret", "Bearer build:77:wrong", `{"status": "SUCCESS"}`, http.StatusUnauthorized},
		{"unknown api key", "Bearer nope", `{"status": "SUCCESS"}`, http.StatusUnauthorized},
		{"other build token", "Bearer build:12:s3cret", `{"status": "SUCCESS"}`, http.StatusForbidden},
		{"human non-abort", "Bearer human-key", `{"status": "SUCCESS"}`, http.StatusBadRequest},
		{"human abort", "Bearer human-key", `{"status": "ABORTED"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeSCM{perms: scm.Permissions{Push: true}})
			req := httptest.NewRequest(http.MethodPut, "/v1/builds/77", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestUpdateBuildBadRequests(t *testing.T) {
	ts := newTestServer(t, &fakeSCM{})

	req := httptest.NewRequest(http.MethodPut, "/v1/builds/abc", strings.NewReader(`{"status": "SUCCESS"}`))
	req.Header.Set("Authorization", "Bearer build:77:s3cret")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/v1/builds/77", strings.NewReader(`{not json`))
	req.Header.Set("Authorization", "Bearer build:77:s3cret")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/v1/builds/77", strings.NewReader(`{"status": "SPARKLING"}`))
	req.Header.Set("Authorization", "Bearer build:77:s3cret")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/v1/builds/404", strings.NewReader(`{"status": "SUCCESS"}`))
	req.Header.Set("Authorization", "Bearer build:404:s3cret")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown build: status = %d, want 404", rec.Code)
	}
}

func TestWebhookEndpoint(t *testing.T) {
	t.Run("push creates events", func(t *testing.T) {
		fake := &fakeSCM{
			hook: &scm.HookPayload{
				Type:        scm.HookTypePush,
				Username:    "octocat",
				CheckoutURL: "git@github.com:org/app.git",
				Branch:      "main",
				SHA:         "feedface",
			},
			branches: []string{"main"},
		}
		ts := newTestServer(t, fake)

		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
		}
		var resp struct {
			Events []models.Event `json:"events"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Events) != 1 {
			t.Errorf("events = %d, want 1", len(resp.Events))
		}
	})

	t.Run("skip marker suppresses", func(t *testing.T) {
		fake := &fakeSCM{
			hook: &scm.HookPayload{
				Type:        scm.HookTypePush,
				Username:    "octocat",
				CheckoutURL: "git@github.com:org/app.git",
				Branch:      "main",
				LastMessage: "docs only [skip ci]",
			},
			branches: []string{"main"},
		}
		ts := newTestServer(t, fake)

		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})
}
