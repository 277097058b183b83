package worker

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kirubashankar/tools-api/internal/dataset"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
	"github.com/kirubashankar/tools-api/internal/mx"
	"github.com/kirubashankar/tools-api/internal/service"
	"github.com/kirubashankar/tools-api/internal/websocket"
)

func newTestEnv(t *testing.T) (*jobs.Manager, *service.FileService, *websocket.Hub) {
	t.Helper()
	manager := jobs.NewManager(jobs.NewMemoryStore())
	files := service.NewFileService(filepath.Join(t.TempDir(), "uploads"), filepath.Join(t.TempDir(), "results"))
	if err := files.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	hub := websocket.NewHub()
	go hub.Run()
	return manager, files, hub
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestMergeWorkerSelfJoin(t *testing.T) {
	manager, files, hub := newTestEnv(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := writeCSV(t, dir, "input.csv", "id,name\n1,alice\n2,bob\n")

	jobID := "merge-test-job"
	if err := manager.Create(ctx, jobID, model.JobTypeMerge); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := NewMergeWorker(manager, files, nil, hub)
	w.run(ctx, jobID, &model.MergeJobPayload{
		PathA:    path,
		PathB:    path,
		JoinType: model.JoinInner,
		LeftKey:  "id",
		RightKey: "id",
	})

	job := manager.Get(ctx, jobID)
	if job == nil {
		t.Fatal("job disappeared")
	}
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Message)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}

	// Every key matches itself exactly once: output equals input.
	stats, ok := job.Stats.(model.MergeStats)
	if !ok {
		t.Fatalf("unexpected stats type %T", job.Stats)
	}
	if stats.OutputRows != 2 || stats.Matched != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if job.ResultID == "" {
		t.Fatal("expected a result id")
	}
	result, err := dataset.ReadFile(files.ResultPath(job.ResultID))
	if err != nil {
		t.Fatalf("result file unreadable: %v", err)
	}
	if result.RowCount() != 2 {
		t.Errorf("expected 2 result rows, got %d", result.RowCount())
	}
}

func TestMergeWorkerFailsOnMissingKey(t *testing.T) {
	manager, files, hub := newTestEnv(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := writeCSV(t, dir, "input.csv", "id,name\n1,alice\n")

	jobID := "merge-bad-key"
	_ = manager.Create(ctx, jobID, model.JobTypeMerge)

	w := NewMergeWorker(manager, files, nil, hub)
	w.run(ctx, jobID, &model.MergeJobPayload{
		PathA:    path,
		PathB:    path,
		JoinType: model.JoinInner,
		LeftKey:  "missing",
		RightKey: "id",
	})

	job := manager.Get(ctx, jobID)
	if job.Status != model.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Message == "" {
		t.Error("failed job should carry an error message")
	}
}

type stubResolver struct {
	valid map[string]bool
}

func (r *stubResolver) LookupMX(_ context.Context, domain string) ([]*net.MX, error) {
	if r.valid[domain] {
		return []*net.MX{{Host: "mx." + domain, Pref: 10}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: domain, IsNotFound: true}
}

func TestValidateWorkerLocalFile(t *testing.T) {
	manager, files, hub := newTestEnv(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := writeCSV(t, dir, "emails.csv",
		"name,email\n"+
			"alice,alice@good.com\n"+
			"bob,bob@dead.com\n"+
			"carol,not-an-email\n"+
			"dave,\n")

	jobID := "validate-test-job"
	_ = manager.Create(ctx, jobID, model.JobTypeEmailValidation)

	checker := mx.NewChecker(&stubResolver{valid: map[string]bool{"good.com": true}})
	w := NewValidateWorker(manager, files, nil, checker, hub)
	w.run(ctx, jobID, &model.ValidationJobPayload{Path: path, EmailColumn: "email"})

	job := manager.Get(ctx, jobID)
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Message)
	}

	stats, ok := job.Stats.(model.ValidationStats)
	if !ok {
		t.Fatalf("unexpected stats type %T", job.Stats)
	}
	if stats.Total != 4 || stats.Valid != 1 || stats.InvalidFormat != 1 || stats.NoMX != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.DomainsChecked != 2 {
		t.Errorf("expected 2 domains checked, got %d", stats.DomainsChecked)
	}

	result, err := dataset.ReadFile(files.ResultPath(jobID + "_validated"))
	if err != nil {
		t.Fatalf("result file unreadable: %v", err)
	}
	statusIdx := result.ColumnIndex("email_status")
	if statusIdx < 0 {
		t.Fatalf("email_status column missing: %v", result.Columns)
	}
	want := []string{"valid", "no_mx", "invalid_format", "empty"}
	for i, expected := range want {
		if got := result.Rows[i][statusIdx]; got != expected {
			t.Errorf("row %d: expected %s, got %s", i, expected, got)
		}
	}
}

func TestValidateWorkerMissingColumn(t *testing.T) {
	manager, files, hub := newTestEnv(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := writeCSV(t, dir, "emails.csv", "name\nalice\n")

	jobID := "validate-bad-col"
	_ = manager.Create(ctx, jobID, model.JobTypeEmailValidation)

	checker := mx.NewChecker(&stubResolver{})
	w := NewValidateWorker(manager, files, nil, checker, hub)
	w.run(ctx, jobID, &model.ValidationJobPayload{Path: path, EmailColumn: "email"})

	job := manager.Get(ctx, jobID)
	if job.Status != model.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
}

// recordingStore wraps a MemoryStore and keeps the sequence of written
// progress/message pairs so tests can assert mid-run visibility.
type recordingStore struct {
	*jobs.MemoryStore
	mu    sync.Mutex
	trace []jobs.Checkpoint
}

func (s *recordingStore) Write(ctx context.Context, id string, job *model.Job) error {
	s.mu.Lock()
	s.trace = append(s.trace, jobs.Checkpoint{Progress: job.Progress, Message: job.Message})
	s.mu.Unlock()
	return s.MemoryStore.Write(ctx, id, job)
}

func TestMergeWorkerProgressVisibleMidRun(t *testing.T) {
	store := &recordingStore{MemoryStore: jobs.NewMemoryStore()}
	manager := jobs.NewManager(store)
	files := service.NewFileService(filepath.Join(t.TempDir(), "uploads"), filepath.Join(t.TempDir(), "results"))
	if err := files.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	hub := websocket.NewHub()
	go hub.Run()

	path := writeCSV(t, t.TempDir(), "input.csv", "id,name\n1,a\n2,b\n")
	ctx := context.Background()
	if err := manager.Create(ctx, "job-trace", model.JobTypeMerge); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := NewMergeWorker(manager, files, nil, hub)
	w.run(ctx, "job-trace", &model.MergeJobPayload{
		PathA: path, PathB: path, JoinType: model.JoinInner,
		LeftKey: "id", RightKey: "id",
	})

	store.mu.Lock()
	trace := append([]jobs.Checkpoint(nil), store.trace...)
	store.mu.Unlock()

	if len(trace) < 3 {
		t.Fatalf("expected several progress writes, got %d", len(trace))
	}
	midRun := 0
	for i := 1; i < len(trace); i++ {
		if trace[i].Progress < trace[i-1].Progress {
			t.Errorf("progress went backwards: %d after %d", trace[i].Progress, trace[i-1].Progress)
		}
		if trace[i].Progress > 0 && trace[i].Progress < 100 {
			midRun++
			if trace[i].Message == "" {
				t.Errorf("mid-run write at %d%% has no message", trace[i].Progress)
			}
		}
	}
	if midRun == 0 {
		t.Error("no mid-run progress was visible, only the terminal write")
	}
	if last := trace[len(trace)-1]; last.Progress != 100 {
		t.Errorf("expected final write at 100%%, got %d", last.Progress)
	}
}
