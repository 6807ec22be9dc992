package models

import (
	"strconv"
	"strings"
	"time"
)

// BuildStatus represents the state of a build
type BuildStatus string

const (
	StatusQueued   BuildStatus = "QUEUED"
	StatusBlocked  BuildStatus = "BLOCKED"
	StatusRunning  BuildStatus = "RUNNING"
	StatusUnstable BuildStatus = "UNSTABLE"
	StatusSuccess  BuildStatus = "SUCCESS"
	StatusFailure  BuildStatus = "FAILURE"
	StatusAborted  BuildStatus = "ABORTED"
)

// Terminal reports whether the status marks a completed build.
// Transitions into a terminal status stamp EndTime and merge meta upward.
func (s BuildStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusAborted
}

// Mutable reports whether a build in this status may still be updated.
func (s BuildStatus) Mutable() bool {
	switch s {
	case StatusRunning, StatusQueued, StatusBlocked, StatusUnstable:
		return true
	}
	return false
}

// Valid reports whether s is a known build status.
func (s BuildStatus) Valid() bool {
	return s.Terminal() || s.Mutable()
}

// Build represents a single execution of a job
type Build struct {
	ID            int64                  `json:"id"`
	JobID         int64                  `json:"job_id"`
	EventID       string                 `json:"event_id"`
	Status        BuildStatus            `json:"status"`
	StatusMessage string                 `json:"status_message,omitempty"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
	Stats         map[string]interface{} `json:"stats,omitempty"`
	CreateTime    time.Time              `json:"create_time"`
	StartTime     *time.Time             `json:"start_time,omitempty"`
	EndTime       *time.Time             `json:"end_time,omitempty"`
}

// EventType distinguishes regular pipeline events from pull-request events
type EventType string

const (
	EventTypePipeline EventType = "pipeline"
	EventTypePR       EventType = "pr"
)

// Event groups all builds created from a single triggering cause
// within one pipeline.
type Event struct {
	ID                string                 `json:"id"`
	PipelineID        int64                  `json:"pipeline_id"`
	Type              EventType              `json:"type"`
	SHA               string                 `json:"sha"`
	ConfigPipelineSHA string                 `json:"config_pipeline_sha"`
	StartFrom         string                 `json:"start_from"`
	Meta              map[string]interface{} `json:"meta,omitempty"`
	CauseMessage      string                 `json:"cause_message,omitempty"`
	Creator           string                 `json:"creator,omitempty"`
	ChangedFiles      []string               `json:"changed_files,omitempty"`
	ParentBuildID     int64                  `json:"parent_build_id,omitempty"`
	PRRef             string                 `json:"pr_ref,omitempty"`
	PRNum             int                    `json:"pr_num,omitempty"`
	PRInfo            map[string]interface{} `json:"pr_info,omitempty"`
	CreateTime        time.Time              `json:"create_time"`
}

// MergeMeta superset-merges the given build meta into the event's meta.
// Existing event keys survive unless the build overwrites them.
func (e *Event) MergeMeta(meta map[string]interface{}) {
	if len(meta) == 0 {
		return
	}
	if e.Meta == nil {
		e.Meta = make(map[string]interface{}, len(meta))
	}
	for k, v := range meta {
		e.Meta[k] = v
	}
}

// AnnotationRestrictPR is the pipeline annotation controlling which
// pull-request origins may trigger builds.
const AnnotationRestrictPR = "restrict-pr"

// PR origin-restriction policy values
const (
	RestrictPRNone   = "none"
	RestrictPRAll    = "all"
	RestrictPRBranch = "branch"
	RestrictPRFork   = "fork"
)

// WorkflowNode is a vertex in a pipeline's workflow graph: either a
// trigger token or a job name.
type WorkflowNode struct {
	Name string `json:"name" yaml:"name"`
}

// WorkflowEdge connects a trigger token or upstream job to a job.
type WorkflowEdge struct {
	Src  string `json:"src" yaml:"src"`
	Dest string `json:"dest" yaml:"dest"`
}

// WorkflowGraph describes which jobs run in response to which triggers
type WorkflowGraph struct {
	Nodes []WorkflowNode `json:"nodes" yaml:"nodes"`
	Edges []WorkflowEdge `json:"edges" yaml:"edges"`
}

// Triggers returns the names of jobs directly reachable from the given
// trigger token.
func (g WorkflowGraph) Triggers(token string) []string {
	var jobs []string
	for _, e := range g.Edges {
		if e.Src == token {
			jobs = append(jobs, e.Dest)
		}
	}
	return jobs
}

// Pipeline represents a registered pipeline at one repository branch
type Pipeline struct {
	ID          int64             `json:"id"`
	ScmURI      string            `json:"scm_uri"`
	ScmContext  string            `json:"scm_context"`
	Branch      string            `json:"branch"`
	Token       string            `json:"-"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Workflow    WorkflowGraph     `json:"workflow_graph"`
}

// RestrictPR returns the pipeline's PR origin-restriction policy,
// defaulting to none when the annotation is absent.
func (p *Pipeline) RestrictPR() string {
	if v, ok := p.Annotations[AnnotationRestrictPR]; ok && v != "" {
		return v
	}
	return RestrictPRNone
}

// PRJobPrefix prefixes the names of jobs created for pull requests.
const PRJobPrefix = "PR-"

// Job represents a runnable unit inside a pipeline's workflow
type Job struct {
	ID           int64                    `json:"id"`
	PipelineID   int64                    `json:"pipeline_id"`
	Name         string                   `json:"name"`
	Archived     bool                     `json:"archived"`
	Permutations []map[string]interface{} `json:"permutations,omitempty"`
}

// IsPR reports whether the job was created for a pull request.
func (j *Job) IsPR() bool {
	return strings.HasPrefix(j.Name, PRJobPrefix)
}

// PRNumber returns the pull-request number embedded in a PR job name,
// or 0 for non-PR jobs. PR jobs are named "PR-<num>" or "PR-<num>:<stage>".
func (j *Job) PRNumber() int {
	if !j.IsPR() {
		return 0
	}
	rest := strings.TrimPrefix(j.Name, PRJobPrefix)
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		rest = rest[:i]
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

// TriggerRecord is a persisted cross-pipeline dependency edge: completion
// of Src should start a new event on the pipeline embedded in Dest.
type TriggerRecord struct {
	ID   int64  `json:"id"`
	Src  string `json:"src"`
	Dest string `json:"dest"`
}
