package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the orchestrator configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	SCM     SCMConfig     `yaml:"scm"`
	Webhook WebhookConfig `yaml:"webhook"`
	UI      UIConfig      `yaml:"ui"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	APIKeys []APIKey `yaml:"api_keys"`
	// BuildSecret authenticates builds reporting their own status.
	BuildSecret string `yaml:"build_secret"`
	// Admins are platform administrators allowed to abort any build.
	Admins []string `yaml:"admins"`
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// SCMConfig contains source-control backend settings
type SCMConfig struct {
	Kind    string `yaml:"kind"`     // currently "github"
	APIBase string `yaml:"api_base"` // optional, for enterprise installs
	Context string `yaml:"context"`  // e.g. "github.com"
	// Token is the service-level credential used for branch discovery;
	// per-pipeline tokens are stored with the pipeline.
	Token string `yaml:"token"`
}

// WebhookConfig contains webhook routing policy
type WebhookConfig struct {
	// IgnoreUsers suppresses events from these usernames (bots).
	IgnoreUsers []string `yaml:"ignore_users"`
}

// UIConfig contains UI link construction settings
type UIConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.SCM.Kind == "" {
		cfg.SCM.Kind = "github"
	}
	if cfg.SCM.Context == "" {
		cfg.SCM.Context = "github.com"
	}
	if cfg.UI.URL == "" {
		cfg.UI.URL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	return &cfg, nil
}
