package store

import (
	"context"
	"errors"
	"testing"

	"github.com/lei/screwpipe/internal/models"
)

func TestMemoryBuilds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBuilds()

	created, err := s.Create(ctx, &models.Build{JobID: 1, Status: models.StatusQueued})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == 0 {
		t.Fatal("Create() did not assign an id")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.StatusQueued {
		t.Errorf("Status = %s, want QUEUED", got.Status)
	}

	got.Status = models.StatusRunning
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	again, _ := s.Get(ctx, created.ID)
	if again.Status != models.StatusRunning {
		t.Errorf("Status after update = %s, want RUNNING", again.Status)
	}

	if _, err := s.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(999) error = %v, want ErrNotFound", err)
	}
	if err := s.Update(ctx, &models.Build{ID: 999}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(999) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryBuildsListActiveByJob(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBuilds()

	for _, b := range []*models.Build{
		{JobID: 7, Status: models.StatusRunning},
		{JobID: 7, Status: models.StatusQueued},
		{JobID: 7, Status: models.StatusSuccess},
		{JobID: 8, Status: models.StatusRunning},
	} {
		if _, err := s.Create(ctx, b); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	active, err := s.ListActiveByJob(ctx, 7)
	if err != nil {
		t.Fatalf("ListActiveByJob() error = %v", err)
	}
	if len(active) != 2 {
		t.Errorf("ListActiveByJob() = %d builds, want 2", len(active))
	}
	for _, b := range active {
		if !b.Status.Mutable() {
			t.Errorf("returned build %d in terminal status %s", b.ID, b.Status)
		}
	}
}

func TestMemoryPipelinesByScmURI(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPipelines(
		&models.Pipeline{ID: 1, ScmURI: "github.com:org/app:main", Branch: "main"},
	)

	p, err := s.GetByScmURI(ctx, "github.com:org/app:main")
	if err != nil {
		t.Fatalf("GetByScmURI() error = %v", err)
	}
	if p.ID != 1 {
		t.Errorf("ID = %d, want 1", p.ID)
	}

	if _, err := s.GetByScmURI(ctx, "github.com:org/app:other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByScmURI(miss) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryTriggersValidatesDest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTriggers()

	if _, err := s.Create(ctx, &models.TriggerRecord{Src: "~sd@1:main", Dest: "no-locator-here"}); err == nil {
		t.Error("Create() accepted a dest without a pipeline locator")
	}

	if _, err := s.Create(ctx, &models.TriggerRecord{Src: "~sd@1:main", Dest: "~sd@2:deploy"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	records, err := s.ListBySrc(ctx, "~sd@1:main")
	if err != nil {
		t.Fatalf("ListBySrc() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("ListBySrc() = %d records, want 1", len(records))
	}
	if records, _ := s.ListBySrc(ctx, "~sd@9:none"); len(records) != 0 {
		t.Errorf("ListBySrc(miss) = %d records, want 0", len(records))
	}
}

func TestMemoryEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryEvents()

	created, err := s.Create(ctx, &models.Event{PipelineID: 3, Type: models.EventTypePipeline})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create() did not assign an id")
	}

	byPipeline, err := s.ListByPipeline(ctx, 3)
	if err != nil {
		t.Fatalf("ListByPipeline() error = %v", err)
	}
	if len(byPipeline) != 1 {
		t.Errorf("ListByPipeline() = %d events, want 1", len(byPipeline))
	}

	created.CauseMessage = "updated"
	if err := s.Update(ctx, created); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := s.Get(ctx, created.ID)
	if got.CauseMessage != "updated" {
		t.Errorf("CauseMessage = %q, want updated", got.CauseMessage)
	}
}
