package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kirubashankar/tools-api/internal/model"
)

// Update is a partial job update. Nil fields are left untouched, so workers
// can report progress without clobbering previously attached results.
type Update struct {
	Status   *model.JobStatus
	Progress *int
	Message  *string

	ResultID  *string
	ResultKey *string
	Stats     interface{}
	Columns   []string
	Preview   []map[string]string
}

// Checkpoint is a named point in a worker's execution at which progress is
// reported. Each job type owns an ordered checkpoint list.
type Checkpoint struct {
	Progress int
	Message  string
}

// Progress builds an Update for a plain progress report.
func Progress(progress int, message string) Update {
	return Update{Progress: &progress, Message: &message}
}

// Failure builds the terminal failed update carrying the error text.
func Failure(errMsg string) Update {
	st := model.JobStatusFailed
	return Update{Status: &st, Message: &errMsg}
}

// Manager owns the job record storage. Handlers and workers never touch the
// store directly. Storage failures are logged and degrade to "absent" reads
// and no-op writes; the returned error is informational and every production
// caller ignores it, so a storage outage shows up as jobs silently not
// progressing rather than HTTP errors.
type Manager struct {
	store Store

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewManager(store Store) *Manager {
	return &Manager{
		store:   store,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create inserts a new record in processing state.
func (m *Manager) Create(ctx context.Context, id string, jobType model.JobType) error {
	job := &model.Job{
		ID:       id,
		Type:     jobType,
		Status:   model.JobStatusProcessing,
		Progress: 0,
		Message:  "Starting...",
		Created:  time.Now(),
	}
	if err := m.store.Write(ctx, id, job); err != nil {
		log.Printf("jobs: failed to create job %s: %v", id, err)
		return err
	}
	log.Printf("jobs: created job %s (%s)", id, jobType)
	return nil
}

// Apply merges the update into an existing record. Updating a job that does
// not exist is a logged no-op.
func (m *Manager) Apply(ctx context.Context, id string, u Update) error {
	job, err := m.store.Read(ctx, id)
	if err != nil {
		log.Printf("jobs: failed to read job %s: %v", id, err)
		return err
	}
	if job == nil {
		log.Printf("jobs: update for unknown job %s ignored", id)
		return nil
	}

	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.Message != nil {
		job.Message = *u.Message
	}
	if u.ResultID != nil {
		job.ResultID = *u.ResultID
	}
	if u.ResultKey != nil {
		job.ResultKey = *u.ResultKey
	}
	if u.Stats != nil {
		job.Stats = u.Stats
	}
	if u.Columns != nil {
		job.Columns = u.Columns
	}
	if u.Preview != nil {
		job.Preview = u.Preview
	}

	if err := m.store.Write(ctx, id, job); err != nil {
		log.Printf("jobs: failed to write job %s: %v", id, err)
		return err
	}
	return nil
}

// Checkpoint reports a named progress milestone.
func (m *Manager) Checkpoint(ctx context.Context, id string, cp Checkpoint) {
	_ = m.Apply(ctx, id, Progress(cp.Progress, cp.Message))
}

// Get returns the job record, or nil if it does not exist or the store read
// failed (failures are logged and treated as absent).
func (m *Manager) Get(ctx context.Context, id string) *model.Job {
	job, err := m.store.Read(ctx, id)
	if err != nil {
		log.Printf("jobs: failed to read job %s: %v", id, err)
		return nil
	}
	return job
}

// Exists checks for the record without deserializing it.
func (m *Manager) Exists(ctx context.Context, id string) bool {
	ok, err := m.store.Exists(ctx, id)
	if err != nil {
		log.Printf("jobs: failed to check job %s: %v", id, err)
		return false
	}
	return ok
}

// Delete removes the record and cancels any associated in-process run.
// Deleting a job that does not exist is a no-op.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		log.Printf("jobs: failed to delete job %s: %v", id, err)
		return err
	}
	m.Cancel(id)
	return nil
}

// RegisterCancel associates a cancellable in-process run with a job id. Only
// goroutine-based runs (the research path) register here; asynq workers run
// to completion once started and cannot be cancelled through the manager.
func (m *Manager) RegisterCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[id] = cancel
}

// Cancel signals cancellation if a run is registered for the id, and reports
// whether cancellation was attempted.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	if ok {
		delete(m.cancels, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	log.Printf("jobs: cancelled run for job %s", id)
	return true
}

// Release drops the cancellation handle for a finished run.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, id)
}
