// Package orchestrator provides a reusable CI orchestration core that can
// be embedded into other Go applications.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lei/screwpipe/internal/api"
	"github.com/lei/screwpipe/internal/config"
	"github.com/lei/screwpipe/internal/lifecycle"
	"github.com/lei/screwpipe/internal/notify"
	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/internal/scm/github"
	"github.com/lei/screwpipe/internal/store"
	"github.com/lei/screwpipe/internal/webhook"
	"github.com/lei/screwpipe/pkg/logger"
)

// Orchestrator represents an orchestration core instance that can be
// embedded in applications.
type Orchestrator struct {
	config    *Config
	lifecycle *lifecycle.Manager
	webhooks  *webhook.Router
	router    http.Handler
	server    *http.Server
	logger    *logger.Logger
}

// Config holds the configuration for the Orchestrator
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication configuration
	Auth AuthConfig

	// SCM backend configuration (currently supports GitHub)
	SCM SCMConfig

	// Webhook routing policy
	Webhook WebhookConfig

	// UIURL is the base URL used when constructing build links.
	UIURL string

	// Stores are the persistence collaborators. Nil stores default to
	// in-memory implementations.
	Stores Stores

	// Publisher receives build_status notifications. Defaults to a
	// logging publisher.
	Publisher notify.Publisher

	// Starter starts same-pipeline downstream jobs after a success.
	// Defaults to a no-op.
	Starter lifecycle.NextJobStarter

	// Syncer refreshes pipeline configuration on PR open. Defaults to a
	// no-op.
	Syncer webhook.PipelineSyncer

	// SCMClient overrides the SCM backend, for tests and custom
	// providers. When nil one is built from the SCM configuration.
	SCMClient scm.SCM

	// Logging configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys     []APIKey
	BuildSecret string
	Admins      []string
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string
	Key  string
}

// SCMConfig holds SCM backend configuration
type SCMConfig struct {
	Kind    string
	APIBase string
	Context string
	Token   string
}

// WebhookConfig holds webhook routing policy
type WebhookConfig struct {
	IgnoreUsers []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// Stores bundles the persistence collaborators
type Stores struct {
	Builds    store.BuildStore
	Events    store.EventStore
	Pipelines store.PipelineStore
	Jobs      store.JobStore
	Triggers  store.TriggerStore
}

// New creates a new Orchestrator instance with the provided configuration
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	scmClient := cfg.SCMClient
	if scmClient == nil {
		switch cfg.SCM.Kind {
		case "", "github":
			scmClient = github.NewAdapter(&github.Config{
				APIBase: cfg.SCM.APIBase,
				Context: cfg.SCM.Context,
			}, appLogger)
			appLogger.Info("initialized github scm backend", "context", cfg.SCM.Context)
		default:
			return nil, fmt.Errorf("unsupported scm kind: %s", cfg.SCM.Kind)
		}
	}

	stores := cfg.Stores
	if stores.Builds == nil {
		stores.Builds = store.NewMemoryBuilds()
	}
	if stores.Events == nil {
		stores.Events = store.NewMemoryEvents()
	}
	if stores.Pipelines == nil {
		stores.Pipelines = store.NewMemoryPipelines()
	}
	if stores.Jobs == nil {
		stores.Jobs = store.NewMemoryJobs()
	}
	if stores.Triggers == nil {
		stores.Triggers = store.NewMemoryTriggers()
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = notify.NewLogPublisher(appLogger)
	}

	cascade := lifecycle.NewCascade(stores.Triggers, stores.Events, stores.Pipelines, scmClient, cfg.Starter, appLogger)
	manager := lifecycle.NewManager(lifecycle.ManagerDeps{
		Builds:    stores.Builds,
		Events:    stores.Events,
		Jobs:      stores.Jobs,
		Pipelines: stores.Pipelines,
		SCM:       scmClient,
		Publisher: publisher,
		Cascade:   cascade,
		UIURL:     cfg.UIURL,
		Admins:    cfg.Auth.Admins,
	}, appLogger)

	resolver := webhook.NewResolver(stores.Pipelines, scmClient, cfg.SCM.Token, appLogger)
	creator := webhook.NewBatchCreator(stores.Events, scmClient, appLogger)
	prs := webhook.NewPRLifecycle(stores.Pipelines, stores.Jobs, stores.Builds, cfg.Syncer, resolver, creator, scmClient, cfg.SCM.Token, appLogger)
	router := webhook.NewRouter(scmClient, resolver, creator, prs, cfg.Webhook.IgnoreUsers, cfg.SCM.Token, appLogger)

	handlers := api.NewHandlers(manager, router)

	configAPIKeys := make([]config.APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		configAPIKeys[i] = config.APIKey{Name: key.Name, Key: key.Key}
	}
	authMiddleware := api.NewAuthMiddleware(configAPIKeys, cfg.Auth.BuildSecret, cfg.SCM.Context)
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	httpRouter := api.NewRouter(handlers, authMiddleware, loggingMiddleware)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Orchestrator{
		config:    cfg,
		lifecycle: manager,
		webhooks:  router,
		router:    httpRouter,
		server:    srv,
		logger:    appLogger,
	}, nil
}

// Start starts the HTTP server
// This is a blocking call that will run until the context is canceled or an error occurs
func (o *Orchestrator) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		o.logger.Info("starting http server", "port", o.config.Server.Port)
		serverErrors <- o.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		o.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := o.server.Shutdown(shutdownCtx); err != nil {
			o.server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		o.logger.Info("server stopped gracefully")
		return nil
	}
}

// Handler returns the http.Handler for the orchestrator
// Use this if you want to integrate the orchestrator into an existing HTTP server
func (o *Orchestrator) Handler() http.Handler {
	return o.router
}

// Lifecycle returns the build lifecycle manager
// Use this for direct programmatic access to build updates
func (o *Orchestrator) Lifecycle() *lifecycle.Manager {
	return o.lifecycle
}

// Webhooks returns the webhook event router
// Use this for direct programmatic delivery of SCM notifications
func (o *Orchestrator) Webhooks() *webhook.Router {
	return o.webhooks
}

// NewFromConfig creates an Orchestrator from a configuration file plus a
// pipeline registry file that seeds the stores with pipelines, jobs and
// cross-pipeline triggers. An empty registry path starts with empty
// stores, for callers that inject their own.
func NewFromConfig(configPath, registryPath string) (*Orchestrator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var stores Stores
	if registryPath != "" {
		reg, err := config.LoadRegistry(registryPath)
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		stores.Pipelines = store.NewMemoryPipelines(reg.Pipelines...)
		stores.Jobs = store.NewMemoryJobs(reg.Jobs...)
		triggers := store.NewMemoryTriggers()
		for _, r := range reg.Triggers {
			if _, err := triggers.Create(context.Background(), r); err != nil {
				return nil, fmt.Errorf("seed trigger registry: %w", err)
			}
		}
		stores.Triggers = triggers
	}

	apiKeys := make([]APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		apiKeys[i] = APIKey{Name: key.Name, Key: key.Key}
	}

	return New(&Config{
		Server: ServerConfig{
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		Auth: AuthConfig{
			APIKeys:     apiKeys,
			BuildSecret: cfg.Auth.BuildSecret,
			Admins:      cfg.Auth.Admins,
		},
		SCM: SCMConfig{
			Kind:    cfg.SCM.Kind,
			APIBase: cfg.SCM.APIBase,
			Context: cfg.SCM.Context,
			Token:   cfg.SCM.Token,
		},
		Webhook: WebhookConfig{
			IgnoreUsers: cfg.Webhook.IgnoreUsers,
		},
		UIURL:  cfg.UI.URL,
		Stores: stores,
		Logging: LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		},
	})
}
