package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/trigger"
)

// MemoryBuilds is an in-memory BuildStore
type MemoryBuilds struct {
	mu     sync.RWMutex
	builds map[int64]models.Build
	nextID int64
}

// NewMemoryBuilds creates an empty in-memory build store
func NewMemoryBuilds() *MemoryBuilds {
	return &MemoryBuilds{builds: make(map[int64]models.Build), nextID: 1}
}

func (s *MemoryBuilds) Get(ctx context.Context, id int64) (*models.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.builds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryBuilds) Create(ctx context.Context, build *models.Build) (*models.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if build.ID == 0 {
		build.ID = s.nextID
		s.nextID++
	} else if build.ID >= s.nextID {
		s.nextID = build.ID + 1
	}
	if build.CreateTime.IsZero() {
		build.CreateTime = time.Now().UTC()
	}
	s.builds[build.ID] = *build
	b := *build
	return &b, nil
}

func (s *MemoryBuilds) Update(ctx context.Context, build *models.Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.builds[build.ID]; !ok {
		return ErrNotFound
	}
	// Last write wins; see DESIGN.md on concurrent updates.
	s.builds[build.ID] = *build
	return nil
}

func (s *MemoryBuilds) ListActiveByJob(ctx context.Context, jobID int64) ([]*models.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Build
	for _, b := range s.builds {
		if b.JobID == jobID && b.Status.Mutable() {
			b := b
			out = append(out, &b)
		}
	}
	return out, nil
}

// MemoryEvents is an in-memory EventStore
type MemoryEvents struct {
	mu     sync.RWMutex
	events map[string]models.Event
}

// NewMemoryEvents creates an empty in-memory event store
func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{events: make(map[string]models.Event)}
}

func (s *MemoryEvents) Get(ctx context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryEvents) Create(ctx context.Context, event *models.Event) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreateTime.IsZero() {
		event.CreateTime = time.Now().UTC()
	}
	s.events[event.ID] = *event
	e := *event
	return &e, nil
}

func (s *MemoryEvents) Update(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		return ErrNotFound
	}
	s.events[event.ID] = *event
	return nil
}

func (s *MemoryEvents) ListByPipeline(ctx context.Context, pipelineID int64) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if e.PipelineID == pipelineID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

// MemoryPipelines is an in-memory PipelineStore
type MemoryPipelines struct {
	mu        sync.RWMutex
	pipelines map[int64]models.Pipeline
	byURI     map[string]int64
}

// NewMemoryPipelines creates an in-memory pipeline store seeded with the
// given pipelines.
func NewMemoryPipelines(pipelines ...*models.Pipeline) *MemoryPipelines {
	s := &MemoryPipelines{
		pipelines: make(map[int64]models.Pipeline),
		byURI:     make(map[string]int64),
	}
	for _, p := range pipelines {
		s.pipelines[p.ID] = *p
		s.byURI[p.ScmURI] = p.ID
	}
	return s
}

func (s *MemoryPipelines) Get(ctx context.Context, id int64) (*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryPipelines) GetByScmURI(ctx context.Context, scmURI string) (*models.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURI[scmURI]
	if !ok {
		return nil, ErrNotFound
	}
	p := s.pipelines[id]
	return &p, nil
}

func (s *MemoryPipelines) Update(ctx context.Context, pipeline *models.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.pipelines[pipeline.ID]
	if !ok {
		return ErrNotFound
	}
	if old.ScmURI != pipeline.ScmURI {
		delete(s.byURI, old.ScmURI)
		s.byURI[pipeline.ScmURI] = pipeline.ID
	}
	s.pipelines[pipeline.ID] = *pipeline
	return nil
}

// MemoryJobs is an in-memory JobStore
type MemoryJobs struct {
	mu   sync.RWMutex
	jobs map[int64]models.Job
}

// NewMemoryJobs creates an in-memory job store seeded with the given jobs.
func NewMemoryJobs(jobs ...*models.Job) *MemoryJobs {
	s := &MemoryJobs{jobs: make(map[int64]models.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = *j
	}
	return s
}

func (s *MemoryJobs) Get(ctx context.Context, id int64) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (s *MemoryJobs) ListByPipeline(ctx context.Context, pipelineID int64) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Job
	for _, j := range s.jobs {
		if j.PipelineID == pipelineID {
			j := j
			out = append(out, &j)
		}
	}
	return out, nil
}

func (s *MemoryJobs) Update(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = *job
	return nil
}

// MemoryTriggers is an in-memory TriggerStore
type MemoryTriggers struct {
	mu      sync.RWMutex
	records []models.TriggerRecord
	nextID  int64
}

// NewMemoryTriggers creates an empty in-memory trigger store
func NewMemoryTriggers() *MemoryTriggers {
	return &MemoryTriggers{nextID: 1}
}

func (s *MemoryTriggers) Create(ctx context.Context, record *models.TriggerRecord) (*models.TriggerRecord, error) {
	// Validate at write time so reads never meet a malformed dest.
	if _, err := trigger.ExtractPipelineID(record.Dest); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == 0 {
		record.ID = s.nextID
		s.nextID++
	}
	s.records = append(s.records, *record)
	r := *record
	return &r, nil
}

func (s *MemoryTriggers) ListBySrc(ctx context.Context, src string) ([]*models.TriggerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TriggerRecord
	for _, r := range s.records {
		if r.Src == src {
			r := r
			out = append(out, &r)
		}
	}
	return out, nil
}
