package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/kirubashankar/tools-api/internal/model"
)

func TestCreateThenGet(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	if err := m.Create(ctx, "job-1", model.JobTypeMerge); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	job := m.Get(ctx, "job-1")
	if job == nil {
		t.Fatal("expected job after create")
	}
	if job.Status != model.JobStatusProcessing {
		t.Errorf("expected status processing, got %s", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("expected progress 0, got %d", job.Progress)
	}
	if job.Message != "Starting..." {
		t.Errorf("unexpected message %q", job.Message)
	}
	if job.Created.IsZero() {
		t.Error("expected created timestamp to be set")
	}
	if !m.Exists(ctx, "job-1") {
		t.Error("Exists should report true")
	}
}

func TestApplyMergesFields(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	_ = m.Create(ctx, "job-1", model.JobTypeMerge)
	_ = m.Apply(ctx, "job-1", Progress(50, "Merging datasets..."))

	// Updating only progress must preserve the previous message.
	p := 70
	_ = m.Apply(ctx, "job-1", Update{Progress: &p})

	job := m.Get(ctx, "job-1")
	if job.Progress != 70 {
		t.Errorf("expected progress 70, got %d", job.Progress)
	}
	if job.Message != "Merging datasets..." {
		t.Errorf("message clobbered: %q", job.Message)
	}
}

func TestApplyUnknownJobIsNoop(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	if err := m.Apply(ctx, "nope", Progress(10, "Loading...")); err != nil {
		t.Fatalf("apply on unknown id should not error: %v", err)
	}
	if m.Get(ctx, "nope") != nil {
		t.Error("update must not create a record")
	}
}

func TestTerminalUpdateCarriesResult(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	_ = m.Create(ctx, "job-1", model.JobTypeMerge)

	st := model.JobStatusCompleted
	p := 100
	msg := "Merge complete"
	rid := "result-abc"
	_ = m.Apply(ctx, "job-1", Update{
		Status:   &st,
		Progress: &p,
		Message:  &msg,
		ResultID: &rid,
		Stats:    model.MergeStats{OutputRows: 2, Matched: 2, JoinType: "inner"},
		Columns:  []string{"id", "name"},
	})

	job := m.Get(ctx, "job-1")
	if job.Status != model.JobStatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if !job.Status.Terminal() {
		t.Error("completed should be terminal")
	}
	if job.ResultID != "result-abc" {
		t.Errorf("unexpected resultId %q", job.ResultID)
	}
	if len(job.Columns) != 2 {
		t.Errorf("unexpected columns %v", job.Columns)
	}
}

func TestDelete(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	_ = m.Create(ctx, "job-1", model.JobTypeResearch)
	if err := m.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if m.Get(ctx, "job-1") != nil {
		t.Error("expected job gone after delete")
	}

	// Deleting an absent id must not error.
	if err := m.Delete(ctx, "absent"); err != nil {
		t.Errorf("delete on absent id errored: %v", err)
	}
}

func TestDeleteCancelsRegisteredRun(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	_ = m.Create(ctx, "job-1", model.JobTypeResearch)

	runCtx, cancel := context.WithCancel(context.Background())
	m.RegisterCancel("job-1", cancel)

	_ = m.Delete(ctx, "job-1")

	select {
	case <-runCtx.Done():
	default:
		t.Error("expected run context to be cancelled by delete")
	}
}

func TestCancel(t *testing.T) {
	m := NewManager(NewMemoryStore())

	if m.Cancel("unknown") {
		t.Error("cancel of unregistered job should report false")
	}

	_, cancel := context.WithCancel(context.Background())
	m.RegisterCancel("job-1", cancel)
	if !m.Cancel("job-1") {
		t.Error("cancel of registered job should report true")
	}
	if m.Cancel("job-1") {
		t.Error("second cancel should report false")
	}
}

// failingStore simulates a storage outage.
type failingStore struct{}

var errStore = errors.New("store down")

func (failingStore) Read(context.Context, string) (*model.Job, error) { return nil, errStore }
func (failingStore) Write(context.Context, string, *model.Job) error  { return errStore }
func (failingStore) Delete(context.Context, string) error             { return errStore }
func (failingStore) Exists(context.Context, string) (bool, error)     { return false, errStore }

func TestDegradedStore(t *testing.T) {
	m := NewManager(failingStore{})
	ctx := context.Background()

	// Everything degrades: no panics, reads come back absent.
	_ = m.Create(ctx, "job-1", model.JobTypeMerge)
	_ = m.Apply(ctx, "job-1", Progress(10, "Loading..."))

	if m.Get(ctx, "job-1") != nil {
		t.Error("degraded store must read as absent")
	}
	if m.Exists(ctx, "job-1") {
		t.Error("degraded store must report not-exists")
	}
}
