package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/kirubashankar/tools-api/internal/client"
	"github.com/kirubashankar/tools-api/internal/dataset"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
	"github.com/kirubashankar/tools-api/internal/service"
	"github.com/kirubashankar/tools-api/internal/websocket"
)

const jobPreviewRows = 100

// taskEnvelope is the wire form every job task uses.
type taskEnvelope struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

var mergeCheckpoints = []jobs.Checkpoint{
	{Progress: 10, Message: "Loading files..."},
	{Progress: 40, Message: "Merging datasets..."},
	{Progress: 70, Message: "Writing results..."},
	{Progress: 90, Message: "Finalizing..."},
}

// MergeWorker processes merge jobs
type MergeWorker struct {
	manager  *jobs.Manager
	files    *service.FileService
	r2Client client.StorageClient
	hub      *websocket.Hub
}

// NewMergeWorker creates a new merge worker
func NewMergeWorker(manager *jobs.Manager, files *service.FileService, r2Client client.StorageClient, hub *websocket.Hub) *MergeWorker {
	return &MergeWorker{
		manager:  manager,
		files:    files,
		r2Client: r2Client,
		hub:      hub,
	}
}

// ProcessTask handles merge task processing
func (w *MergeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var envelope taskEnvelope
	if err := json.Unmarshal(t.Payload(), &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	var payload model.MergeJobPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		w.failJob(ctx, envelope.JobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal merge payload: %w", err)
	}

	log.Printf("Starting merge job: %s", envelope.JobID)
	w.run(ctx, envelope.JobID, &payload)
	return nil
}

// run executes a merge to its terminal state. Domain failures mark the job
// failed rather than bubbling an error into the retry machinery.
func (w *MergeWorker) run(ctx context.Context, jobID string, payload *model.MergeJobPayload) {
	w.checkpoint(ctx, jobID, mergeCheckpoints[0])

	left, right, err := w.loadInputs(ctx, payload)
	if err != nil {
		w.failJob(ctx, jobID, err.Error())
		return
	}

	w.checkpoint(ctx, jobID, mergeCheckpoints[1])
	merged, stats, err := dataset.Join(left, right, payload.LeftKey, payload.RightKey, payload.JoinType)
	if err != nil {
		w.failJob(ctx, jobID, err.Error())
		return
	}
	merged = merged.SelectColumns(payload.SelectedColumns)

	w.checkpoint(ctx, jobID, mergeCheckpoints[2])
	update := jobs.Update{
		Stats:   stats,
		Columns: merged.Columns,
		Preview: merged.Preview(jobPreviewRows),
	}

	if payload.KeyA != "" {
		resultKey := fmt.Sprintf("merge/results/%s.csv", jobID)
		var buf bytes.Buffer
		if err := merged.WriteCSV(&buf); err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to serialize result: %v", err))
			return
		}
		if _, err := w.r2Client.Upload(ctx, resultKey, bytes.NewReader(buf.Bytes()), "text/csv"); err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to store result: %v", err))
			return
		}
		update.ResultKey = &resultKey
	} else {
		resultID := uuid.New().String()
		if err := merged.SaveCSV(w.files.ResultPath(resultID)); err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to store result: %v", err))
			return
		}
		update.ResultID = &resultID
	}

	w.checkpoint(ctx, jobID, mergeCheckpoints[3])

	status := model.JobStatusCompleted
	progress := 100
	message := "Merge completed"
	update.Status = &status
	update.Progress = &progress
	update.Message = &message
	if err := w.manager.Apply(ctx, jobID, update); err != nil {
		log.Printf("Merge job %s: failed to save terminal update: %v", jobID, err)
	}

	w.hub.BroadcastComplete(jobID, w.manager.Get(ctx, jobID))
	log.Printf("Merge job %s completed: %d rows", jobID, stats.OutputRows)
}

func (w *MergeWorker) loadInputs(ctx context.Context, payload *model.MergeJobPayload) (*dataset.Table, *dataset.Table, error) {
	if payload.KeyA != "" {
		left, err := w.downloadTable(ctx, payload.KeyA)
		if err != nil {
			return nil, nil, err
		}
		right, err := w.downloadTable(ctx, payload.KeyB)
		if err != nil {
			return nil, nil, err
		}
		return left, right, nil
	}

	left, err := dataset.ReadFile(payload.PathA)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load first file: %w", err)
	}
	right, err := dataset.ReadFile(payload.PathB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load second file: %w", err)
	}
	return left, right, nil
}

func (w *MergeWorker) downloadTable(ctx context.Context, key string) (*dataset.Table, error) {
	data, err := w.r2Client.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return dataset.ReadBytes(data, key)
}

func (w *MergeWorker) checkpoint(ctx context.Context, jobID string, cp jobs.Checkpoint) {
	w.manager.Checkpoint(ctx, jobID, cp)
	w.hub.BroadcastProgress(jobID, cp.Progress, model.JobStatusProcessing, cp.Message)
}

func (w *MergeWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.manager.Apply(ctx, jobID, jobs.Failure(errMsg)); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
	}
	w.hub.BroadcastError(jobID, errMsg)
}
