package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/trigger"
)

// RegistryConfig represents the pipeline registry file structure
type RegistryConfig struct {
	Pipelines []PipelineDefinition `yaml:"pipelines"`
	Triggers  []TriggerDefinition  `yaml:"triggers"`
}

// PipelineDefinition represents a pipeline definition in the registry file
type PipelineDefinition struct {
	ID          int64                `yaml:"id"`
	ScmURI      string               `yaml:"scm_uri"`
	ScmContext  string               `yaml:"scm_context"`
	Branch      string               `yaml:"branch"`
	Token       string               `yaml:"token"`
	Annotations map[string]string    `yaml:"annotations"`
	Workflow    models.WorkflowGraph `yaml:"workflow"`
	Jobs        []JobDefinition      `yaml:"jobs"`
}

// JobDefinition represents a job belonging to a pipeline
type JobDefinition struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// TriggerDefinition represents a cross-pipeline trigger edge
type TriggerDefinition struct {
	Src  string `yaml:"src"`
	Dest string `yaml:"dest"`
}

// Registry holds the seed state loaded from a registry file
type Registry struct {
	Pipelines []*models.Pipeline
	Jobs      []*models.Job
	Triggers  []*models.TriggerRecord
}

// LoadRegistry reads and parses the pipeline registry file
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	// Expand environment variables so tokens can stay out of the file
	expanded := os.ExpandEnv(string(data))

	var cfg RegistryConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	// Validate and convert to models
	reg := &Registry{}
	for i, pd := range cfg.Pipelines {
		if pd.ID == 0 {
			return nil, fmt.Errorf("pipeline at index %d missing id", i)
		}
		if pd.ScmURI == "" {
			return nil, fmt.Errorf("pipeline %d missing scm_uri", pd.ID)
		}
		if pd.Branch == "" {
			return nil, fmt.Errorf("pipeline %d missing branch", pd.ID)
		}
		for _, e := range pd.Workflow.Edges {
			if strings.HasPrefix(e.Src, "~") {
				if _, err := trigger.Parse(e.Src); err != nil {
					return nil, fmt.Errorf("pipeline %d workflow: %w", pd.ID, err)
				}
			}
		}

		reg.Pipelines = append(reg.Pipelines, &models.Pipeline{
			ID:          pd.ID,
			ScmURI:      pd.ScmURI,
			ScmContext:  pd.ScmContext,
			Branch:      pd.Branch,
			Token:       pd.Token,
			Annotations: pd.Annotations,
			Workflow:    pd.Workflow,
		})

		for j, jd := range pd.Jobs {
			if jd.ID == 0 {
				return nil, fmt.Errorf("pipeline %d job at index %d missing id", pd.ID, j)
			}
			if jd.Name == "" {
				return nil, fmt.Errorf("pipeline %d job %d missing name", pd.ID, jd.ID)
			}
			reg.Jobs = append(reg.Jobs, &models.Job{
				ID:         jd.ID,
				PipelineID: pd.ID,
				Name:       jd.Name,
			})
		}
	}

	for i, td := range cfg.Triggers {
		if _, err := trigger.Parse(td.Src); err != nil {
			return nil, fmt.Errorf("trigger at index %d: invalid src: %w", i, err)
		}
		if _, err := trigger.ExtractPipelineID(td.Dest); err != nil {
			return nil, fmt.Errorf("trigger at index %d: invalid dest: %w", i, err)
		}
		reg.Triggers = append(reg.Triggers, &models.TriggerRecord{Src: td.Src, Dest: td.Dest})
	}

	return reg, nil
}
