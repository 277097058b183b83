package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/kirubashankar/tools-api/internal/client"
	"github.com/kirubashankar/tools-api/internal/dataset"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
	"github.com/kirubashankar/tools-api/internal/mx"
	"github.com/kirubashankar/tools-api/internal/service"
	"github.com/kirubashankar/tools-api/internal/websocket"
)

// DNS checks run in chunks so long files report progress as they go.
const domainChunkSize = 100

// Email status values written into the result column.
const (
	emailStatusValid         = "valid"
	emailStatusInvalidFormat = "invalid_format"
	emailStatusNoMX          = "no_mx"
	emailStatusEmpty         = "empty"
)

// ValidateWorker processes email validation jobs
type ValidateWorker struct {
	manager  *jobs.Manager
	files    *service.FileService
	r2Client client.StorageClient
	checker  *mx.Checker
	hub      *websocket.Hub
}

// NewValidateWorker creates a new validation worker
func NewValidateWorker(manager *jobs.Manager, files *service.FileService, r2Client client.StorageClient, checker *mx.Checker, hub *websocket.Hub) *ValidateWorker {
	return &ValidateWorker{
		manager:  manager,
		files:    files,
		r2Client: r2Client,
		checker:  checker,
		hub:      hub,
	}
}

// ProcessTask handles validation task processing
func (w *ValidateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var envelope taskEnvelope
	if err := json.Unmarshal(t.Payload(), &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	var payload model.ValidationJobPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		w.failJob(ctx, envelope.JobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal validation payload: %w", err)
	}

	log.Printf("Starting validation job: %s", envelope.JobID)
	w.run(ctx, envelope.JobID, &payload)
	return nil
}

func (w *ValidateWorker) run(ctx context.Context, jobID string, payload *model.ValidationJobPayload) {
	w.checkpoint(ctx, jobID, jobs.Checkpoint{Progress: 10, Message: "Loading file..."})

	tbl, err := w.loadInput(ctx, payload)
	if err != nil {
		w.failJob(ctx, jobID, err.Error())
		return
	}

	colIdx := tbl.ColumnIndex(payload.EmailColumn)
	if colIdx < 0 {
		w.failJob(ctx, jobID, fmt.Sprintf("column %q not found in file", payload.EmailColumn))
		return
	}

	w.checkpoint(ctx, jobID, jobs.Checkpoint{Progress: 25, Message: "Checking email formats..."})

	// First pass: format checks plus the set of domains worth a DNS lookup.
	stats := model.ValidationStats{Total: tbl.RowCount()}
	domainSet := make(map[string]struct{})
	for _, row := range tbl.Rows {
		email := row[colIdx]
		if email == "" {
			continue
		}
		if !mx.ValidEmailFormat(email) {
			stats.InvalidFormat++
			continue
		}
		domainSet[mx.Domain(email)] = struct{}{}
	}

	domains := make([]string, 0, len(domainSet))
	for d := range domainSet {
		domains = append(domains, d)
	}
	stats.DomainsChecked = len(domains)

	// Second pass: MX lookups in chunks with progress in between.
	domainValid := make(map[string]bool, len(domains))
	for start := 0; start < len(domains); start += domainChunkSize {
		end := start + domainChunkSize
		if end > len(domains) {
			end = len(domains)
		}
		for d, ok := range w.checker.CheckDomains(ctx, domains[start:end]) {
			domainValid[d] = ok
		}

		pct := 25
		if len(domains) > 0 {
			pct = 25 + 65*end/len(domains)
		}
		w.checkpoint(ctx, jobID, jobs.Checkpoint{
			Progress: pct,
			Message:  fmt.Sprintf("Checked %d/%d domains...", end, len(domains)),
		})
	}

	// Annotate every row with the verdict.
	tbl.Columns = append(tbl.Columns, "email_valid", "email_status")
	for i, row := range tbl.Rows {
		email := row[colIdx]
		valid, status := verdict(email, domainValid)
		if status == emailStatusValid {
			stats.Valid++
		} else if status == emailStatusNoMX {
			stats.NoMX++
		}
		tbl.Rows[i] = append(row, fmt.Sprintf("%t", valid), status)
	}

	w.checkpoint(ctx, jobID, jobs.Checkpoint{Progress: 95, Message: "Writing results..."})

	update := jobs.Update{
		Stats:   stats,
		Columns: tbl.Columns,
		Preview: tbl.Preview(jobPreviewRows),
	}

	if payload.Key != "" {
		resultKey := fmt.Sprintf("validation/results/%s_validated.csv", jobID)
		var buf bytes.Buffer
		if err := tbl.WriteCSV(&buf); err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to serialize result: %v", err))
			return
		}
		if _, err := w.r2Client.Upload(ctx, resultKey, bytes.NewReader(buf.Bytes()), "text/csv"); err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to store result: %v", err))
			return
		}
		update.ResultKey = &resultKey
	} else {
		path := w.files.ResultPath(jobID + "_validated")
		if err := tbl.SaveCSV(path); err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to store result: %v", err))
			return
		}
	}

	status := model.JobStatusCompleted
	progress := 100
	message := "Validation completed"
	update.Status = &status
	update.Progress = &progress
	update.Message = &message
	if err := w.manager.Apply(ctx, jobID, update); err != nil {
		log.Printf("Validation job %s: failed to save terminal update: %v", jobID, err)
	}

	w.hub.BroadcastComplete(jobID, w.manager.Get(ctx, jobID))
	log.Printf("Validation job %s completed: %d/%d valid", jobID, stats.Valid, stats.Total)
}

func verdict(email string, domainValid map[string]bool) (bool, string) {
	if email == "" {
		return false, emailStatusEmpty
	}
	if !mx.ValidEmailFormat(email) {
		return false, emailStatusInvalidFormat
	}
	if domainValid[mx.Domain(email)] {
		return true, emailStatusValid
	}
	return false, emailStatusNoMX
}

func (w *ValidateWorker) loadInput(ctx context.Context, payload *model.ValidationJobPayload) (*dataset.Table, error) {
	if payload.Key != "" {
		data, err := w.r2Client.Download(ctx, payload.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", payload.Key, err)
		}
		return dataset.ReadBytes(data, payload.Key)
	}
	return dataset.ReadFile(payload.Path)
}

func (w *ValidateWorker) checkpoint(ctx context.Context, jobID string, cp jobs.Checkpoint) {
	w.manager.Checkpoint(ctx, jobID, cp)
	w.hub.BroadcastProgress(jobID, cp.Progress, model.JobStatusProcessing, cp.Message)
}

func (w *ValidateWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.manager.Apply(ctx, jobID, jobs.Failure(errMsg)); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
	}
	w.hub.BroadcastError(jobID, errMsg)
}
