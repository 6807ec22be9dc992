package config

import (
	"strings"
	"testing"
)

func TestLoadRegistry(t *testing.T) {
	content := `
pipelines:
  - id: 5
    scm_uri: "github.com:org/app:main"
    branch: main
    token: ${TEST_PIPELINE_TOKEN}
    annotations:
      restrict-pr: fork
    workflow:
      edges:
        - src: "~commit"
          dest: main
        - src: main
          dest: deploy
    jobs:
      - id: 1
        name: main
      - id: 2
        name: deploy
  - id: 9
    scm_uri: "github.com:org/deploy:main"
    branch: main
triggers:
  - src: "~sd@5:deploy"
    dest: "~sd@9:release"
`
	t.Setenv("TEST_PIPELINE_TOKEN", "tok-from-env")

	reg, err := LoadRegistry(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}

	if len(reg.Pipelines) != 2 {
		t.Fatalf("Pipelines = %d, want 2", len(reg.Pipelines))
	}
	p := reg.Pipelines[0]
	if p.ID != 5 || p.ScmURI != "github.com:org/app:main" {
		t.Errorf("pipeline = %+v", p)
	}
	if p.Token != "tok-from-env" {
		t.Errorf("Token = %q, want expanded from env", p.Token)
	}
	if p.RestrictPR() != "fork" {
		t.Errorf("RestrictPR() = %q, want fork", p.RestrictPR())
	}
	if got := p.Workflow.Triggers("~commit"); len(got) != 1 || got[0] != "main" {
		t.Errorf("Triggers(~commit) = %v", got)
	}

	if len(reg.Jobs) != 2 {
		t.Fatalf("Jobs = %d, want 2", len(reg.Jobs))
	}
	if reg.Jobs[0].PipelineID != 5 || reg.Jobs[0].Name != "main" {
		t.Errorf("job = %+v", reg.Jobs[0])
	}

	if len(reg.Triggers) != 1 {
		t.Fatalf("Triggers = %d, want 1", len(reg.Triggers))
	}
	if reg.Triggers[0].Src != "~sd@5:deploy" {
		t.Errorf("trigger = %+v", reg.Triggers[0])
	}
}

func TestLoadRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing pipeline id",
			"pipelines:\n  - scm_uri: \"github.com:org/app:main\"\n    branch: main\n",
			"missing id",
		},
		{
			"missing scm_uri",
			"pipelines:\n  - id: 5\n    branch: main\n",
			"missing scm_uri",
		},
		{
			"missing branch",
			"pipelines:\n  - id: 5\n    scm_uri: \"github.com:org/app:main\"\n",
			"missing branch",
		},
		{
			"job without name",
			"pipelines:\n  - id: 5\n    scm_uri: \"github.com:org/app:main\"\n    branch: main\n    jobs:\n      - id: 1\n",
			"missing name",
		},
		{
			"bad workflow token",
			"pipelines:\n  - id: 5\n    scm_uri: \"github.com:org/app:main\"\n    branch: main\n    workflow:\n      edges:\n        - src: \"~release\"\n          dest: main\n",
			"workflow",
		},
		{
			"bad trigger src",
			"triggers:\n  - src: \"commit\"\n    dest: \"~sd@9:release\"\n",
			"invalid src",
		},
		{
			"bad trigger dest",
			"triggers:\n  - src: \"~sd@5:main\"\n    dest: \"no-locator\"\n",
			"invalid dest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRegistry(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadRegistry() = nil error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	if _, err := LoadRegistry("/nonexistent/registry.yaml"); err == nil {
		t.Error("LoadRegistry() = nil error for missing file")
	}
}
