package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirubashankar/tools-api/internal/cache"
	"github.com/kirubashankar/tools-api/internal/client"
	"github.com/kirubashankar/tools-api/internal/dataset"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
)

const (
	researchBatchSize = 10
	historyNamespace  = "runs_history"
	maxHistoryEntries = 100

	sessionTTL = time.Hour
)

// researchSession holds uploaded CSV rows until a run consumes them.
type researchSession struct {
	rows      [][]string
	hasHeader bool
	created   time.Time
}

// runState is the live, in-process state of one research run. The job record
// carries the coarse status; the row-level results live here until the run
// finishes and they are written out.
type runState struct {
	mu       sync.Mutex
	progress model.ResearchProgress
	results  []map[string]string
	done     bool
}

func (r *runState) snapshot() (model.ResearchProgress, []map[string]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make([]map[string]string, len(r.results))
	copy(results, r.results)
	return r.progress, results, r.done
}

// ResearchService runs AI research over entity lists. Runs execute as
// goroutines with a cancel func registered in the job manager, which makes
// research the only cooperatively stoppable job type.
type ResearchService struct {
	manager    *jobs.Manager
	researcher client.Researcher
	cache      *cache.Cache
	files      *FileService

	mu       sync.Mutex
	sessions map[string]*researchSession
	runs     map[string]*runState
}

func NewResearchService(manager *jobs.Manager, researcher client.Researcher, c *cache.Cache, files *FileService) *ResearchService {
	return &ResearchService{
		manager:    manager,
		researcher: researcher,
		cache:      c,
		files:      files,
		sessions:   make(map[string]*researchSession),
		runs:       make(map[string]*runState),
	}
}

// UploadCSV parses an entity list and stores it as a session the client can
// start a run against.
func (s *ResearchService) UploadCSV(data []byte) (*model.CSVUploadResponse, error) {
	tbl, err := dataset.ReadCSV(data)
	if err != nil {
		return nil, err
	}

	// ReadCSV treats the first row as a header; fold it back in and decide
	// from the data whether it really is one.
	rows := make([][]string, 0, len(tbl.Rows)+1)
	rows = append(rows, tbl.Columns)
	rows = append(rows, tbl.Rows...)
	hasHeader := detectHeader(rows)

	sessionID := uuid.New().String()
	s.mu.Lock()
	s.sessions[sessionID] = &researchSession{rows: rows, hasHeader: hasHeader, created: time.Now()}
	s.pruneSessionsLocked()
	s.mu.Unlock()

	total := len(rows)
	if hasHeader {
		total--
	}
	sample := rows
	if len(sample) > previewRows {
		sample = sample[:previewRows]
	}

	return &model.CSVUploadResponse{
		SessionID:  sessionID,
		TotalRows:  total,
		SampleData: sample,
		HasHeader:  hasHeader,
	}, nil
}

// detectHeader guesses whether the first row is a header: if any first-row
// cell is numeric it is treated as data.
func detectHeader(rows [][]string) bool {
	if len(rows) < 2 {
		return false
	}
	for _, cell := range rows[0] {
		if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			return false
		}
	}
	return true
}

func (s *ResearchService) pruneSessionsLocked() {
	cutoff := time.Now().Add(-sessionTTL)
	for id, sess := range s.sessions {
		if sess.created.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// StartRun creates a research job and launches the run goroutine. Rows come
// from a prior upload session or inline from the request.
func (s *ResearchService) StartRun(ctx context.Context, req *model.RunResearchRequest) (string, error) {
	var rows [][]string
	hasHeader := false

	switch {
	case req.SessionID != "":
		s.mu.Lock()
		sess, ok := s.sessions[req.SessionID]
		if ok {
			rows = sess.rows
			hasHeader = sess.hasHeader
			delete(s.sessions, req.SessionID)
		}
		s.mu.Unlock()
		if !ok {
			return "", fmt.Errorf("session %s not found (it may have expired)", req.SessionID)
		}
	case len(req.CSVData) > 0:
		rows = req.CSVData
		hasHeader = detectHeader(rows)
	default:
		return "", fmt.Errorf("either sessionId or csvData is required")
	}

	data := rows
	var header []string
	if hasHeader {
		header = rows[0]
		data = rows[1:]
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no data rows to research")
	}

	runID := uuid.New().String()
	if err := s.manager.Create(ctx, runID, model.JobTypeResearch); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	batches := (len(data) + researchBatchSize - 1) / researchBatchSize
	state := &runState{progress: model.ResearchProgress{
		Total:        len(data),
		BatchesTotal: batches,
	}}
	s.mu.Lock()
	s.runs[runID] = state
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	s.manager.RegisterCancel(runID, cancel)
	go s.run(runCtx, runID, state, header, data, req.Fields)

	return runID, nil
}

// run walks the rows batch by batch. Cancellation is honored between
// batches only; a batch in flight always finishes.
func (s *ResearchService) run(ctx context.Context, runID string, state *runState, header []string, rows [][]string, fields []model.ResearchField) {
	defer s.manager.Release(runID)
	log.Printf("Starting research run %s: %d rows, %d fields", runID, len(rows), len(fields))

	stopped := false
	for start := 0; start < len(rows); start += researchBatchSize {
		if ctx.Err() != nil {
			stopped = true
			break
		}

		end := start + researchBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		results := make([]map[string]string, len(batch))
		var wg sync.WaitGroup
		for i, row := range batch {
			wg.Add(1)
			go func(i int, row []string) {
				defer wg.Done()
				results[i] = s.researchRow(ctx, row, header, fields)
			}(i, row)
		}
		wg.Wait()

		state.mu.Lock()
		state.results = append(state.results, results...)
		state.progress.Completed += len(batch)
		state.progress.BatchesCompleted++
		progress := state.progress
		state.mu.Unlock()

		pct := progress.Completed * 100 / progress.Total
		if pct > 99 {
			pct = 99
		}
		s.manager.Checkpoint(ctx, runID, jobs.Checkpoint{
			Progress: pct,
			Message:  fmt.Sprintf("Processed batch %d/%d", progress.BatchesCompleted, progress.BatchesTotal),
		})
	}

	s.finish(runID, state, fields, header, stopped)
}

// researchRow enriches one input row. The first cell is the entity; the rest
// travel along as context for the prompt and are echoed into the result.
func (s *ResearchService) researchRow(ctx context.Context, row []string, header []string, fields []model.ResearchField) map[string]string {
	result := make(map[string]string, len(row)+len(fields))
	entity := ""
	for i, cell := range row {
		name := columnName(header, i)
		result[name] = cell
		if i == 0 {
			entity = cell
		}
	}
	if strings.TrimSpace(entity) == "" {
		return result
	}

	rowContext := make(map[string]string, len(row)-1)
	for i := 1; i < len(row); i++ {
		rowContext[columnName(header, i)] = row[i]
	}

	for k, v := range s.researcher.Research(ctx, entity, rowContext, fields) {
		result[k] = v
	}
	return result
}

func columnName(header []string, i int) string {
	if i < len(header) && header[i] != "" {
		return header[i]
	}
	return fmt.Sprintf("column_%d", i+1)
}

// finish writes the result CSV, posts the terminal job update and appends
// the run to the history log.
func (s *ResearchService) finish(runID string, state *runState, fields []model.ResearchField, header []string, stopped bool) {
	state.mu.Lock()
	state.done = true
	results := state.results
	progress := state.progress
	state.mu.Unlock()

	columns := make([]string, 0, len(header)+len(fields))
	if len(header) > 0 {
		columns = append(columns, header...)
	} else if len(results) > 0 {
		// Without a header the input width is unknown up front; derive
		// synthetic names from the widest result row.
		width := 0
		for _, r := range results {
			if len(r) > width {
				width = len(r)
			}
		}
		for i := 0; i < width-len(fields); i++ {
			columns = append(columns, fmt.Sprintf("column_%d", i+1))
		}
	}
	for _, f := range fields {
		columns = append(columns, f.Name)
	}

	filename := fmt.Sprintf("research_%s.csv", runID)
	tbl := &dataset.Table{Columns: columns}
	for _, r := range results {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = r[c]
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	if err := tbl.SaveCSV(s.files.resultsDir + "/" + filename); err != nil {
		log.Printf("Research run %s: failed to write results file: %v", runID, err)
		filename = ""
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCtx()

	message := "Research completed"
	if stopped {
		message = fmt.Sprintf("Stopped after %d of %d batches", progress.BatchesCompleted, progress.BatchesTotal)
	}
	status := model.JobStatusCompleted
	update := jobs.Update{
		Status:  &status,
		Message: &message,
		Stats:   model.ResearchStats{TotalRecords: progress.Total, ResultsCount: len(results), Filename: filename},
		Columns: columns,
	}
	done := 100
	update.Progress = &done
	if err := s.manager.Apply(ctx, runID, update); err != nil {
		log.Printf("Research run %s: failed to finalize job: %v", runID, err)
	}

	s.appendHistory(ctx, model.RunHistoryEntry{
		ID:           runID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		TotalRecords: progress.Total,
		ResultsCount: len(results),
		Status:       statusLabel(stopped),
		Filename:     filename,
	})

	log.Printf("Research run %s finished: %d results (stopped=%v)", runID, len(results), stopped)
}

func statusLabel(stopped bool) string {
	if stopped {
		return "stopped"
	}
	return "completed"
}

func (s *ResearchService) appendHistory(ctx context.Context, entry model.RunHistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []model.RunHistoryEntry
	s.cache.LoadFull(ctx, historyNamespace, &entries)
	entries = append(entries, entry)
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}
	s.cache.SaveFull(ctx, historyNamespace, entries)
}

// Progress returns the live progress of a run.
func (s *ResearchService) Progress(ctx context.Context, runID string) (*model.ResearchProgress, *model.Job, error) {
	job := s.manager.Get(ctx, runID)
	if job == nil || job.Type != model.JobTypeResearch {
		return nil, nil, fmt.Errorf("run %s not found", runID)
	}

	s.mu.Lock()
	state := s.runs[runID]
	s.mu.Unlock()
	if state == nil {
		// Run state is in-process only; after a restart the job record is
		// all that is left.
		return &model.ResearchProgress{}, job, nil
	}
	progress, _, _ := state.snapshot()
	return &progress, job, nil
}

// Results returns the rows researched so far, from offset, so the client
// can stream a running table.
func (s *ResearchService) Results(ctx context.Context, runID string, offset int) (*model.ResearchResultsResponse, error) {
	if job := s.manager.Get(ctx, runID); job == nil || job.Type != model.JobTypeResearch {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	s.mu.Lock()
	state := s.runs[runID]
	s.mu.Unlock()
	if state == nil {
		return nil, fmt.Errorf("results for run %s are no longer available", runID)
	}

	_, results, _ := state.snapshot()
	total := len(results)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	return &model.ResearchResultsResponse{
		Results: results[offset:],
		Total:   total,
	}, nil
}

// Stop requests cooperative cancellation of a running run.
func (s *ResearchService) Stop(ctx context.Context, runID string) (*model.StopResearchResponse, error) {
	if job := s.manager.Get(ctx, runID); job == nil || job.Type != model.JobTypeResearch {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	if !s.manager.Cancel(runID) {
		return &model.StopResearchResponse{Success: false, Message: "Run is not active"}, nil
	}
	return &model.StopResearchResponse{Success: true, Message: "Stop requested; the current batch will finish first"}, nil
}

// History returns the persisted run log plus cache backend info.
func (s *ResearchService) History(ctx context.Context) *model.HistoryResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []model.RunHistoryEntry
	s.cache.LoadFull(ctx, historyNamespace, &entries)

	// Newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return &model.HistoryResponse{
		Runs: entries,
		CacheStats: model.CacheStats{
			MirrorEnabled: s.cache.MirrorEnabled(),
			Bucket:        s.cache.Bucket(),
		},
	}
}

// DeleteRuns removes history entries by id.
func (s *ResearchService) DeleteRuns(ctx context.Context, ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []model.RunHistoryEntry
	s.cache.LoadFull(ctx, historyNamespace, &entries)

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := entries[:0]
	deleted := 0
	for _, e := range entries {
		if _, ok := drop[e.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	if deleted > 0 {
		s.cache.SaveFull(ctx, historyNamespace, kept)
	}
	return deleted
}

// DownloadPath resolves a research result file for download.
func (s *ResearchService) DownloadPath(filename string) (string, error) {
	if !strings.HasPrefix(filename, "research_") || !strings.HasSuffix(filename, ".csv") {
		return "", fmt.Errorf("invalid filename")
	}
	return s.files.ResolveResultFile(filename)
}
