package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/kirubashankar/tools-api/internal/client"
	"github.com/kirubashankar/tools-api/internal/dataset"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
)

const (
	previewRows       = 5
	uniqueValuesLimit = 50000
	presignExpiry     = 15 * time.Minute
)

// MergeService handles file uploads, match previews and merge job creation.
type MergeService struct {
	files       *FileService
	manager     *jobs.Manager
	asynqClient *asynq.Client
	r2Client    client.StorageClient
}

func NewMergeService(files *FileService, manager *jobs.Manager, asynqClient *asynq.Client, r2Client client.StorageClient) *MergeService {
	return &MergeService{
		files:       files,
		manager:     manager,
		asynqClient: asynqClient,
		r2Client:    r2Client,
	}
}

// UploadFile stores an upload and returns its profile: columns, inferred
// types, a short preview and per-column cardinality.
func (s *MergeService) UploadFile(filename string, data []byte) (*model.FileUploadResponse, error) {
	fileID, path, err := s.files.SaveUpload(filename, data)
	if err != nil {
		return nil, err
	}

	tbl, err := dataset.ReadFile(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return &model.FileUploadResponse{
		Success:      true,
		FileID:       fileID,
		FileName:     filename,
		FileType:     filepath.Ext(filename),
		Columns:      tbl.Columns,
		DTypes:       tbl.DTypes(),
		RowCount:     tbl.RowCount(),
		Preview:      tbl.Preview(previewRows),
		UniqueCounts: tbl.UniqueCounts(),
	}, nil
}

// PreviewMatch reports how well two key columns would line up before the
// client commits to a merge.
func (s *MergeService) PreviewMatch(req *model.PreviewMatchRequest) (*model.PreviewMatchResponse, error) {
	pathA, err := s.files.FindUpload(req.FileAID)
	if err != nil {
		return nil, err
	}
	pathB, err := s.files.FindUpload(req.FileBID)
	if err != nil {
		return nil, err
	}

	tblA, err := dataset.ReadFile(pathA)
	if err != nil {
		return nil, err
	}
	tblB, err := dataset.ReadFile(pathB)
	if err != nil {
		return nil, err
	}

	valuesA, err := tblA.UniqueValues(req.KeyA, uniqueValuesLimit)
	if err != nil {
		return nil, err
	}
	valuesB, err := tblB.UniqueValues(req.KeyB, uniqueValuesLimit)
	if err != nil {
		return nil, err
	}

	matches := 0
	for v := range valuesA {
		if _, ok := valuesB[v]; ok {
			matches++
		}
	}

	resp := &model.PreviewMatchResponse{
		Success:    true,
		UniqueA:    len(valuesA),
		UniqueB:    len(valuesB),
		MatchCount: matches,
	}
	if len(valuesA) > 0 {
		resp.MatchPercent = float64(matches) / float64(len(valuesA)) * 100
	}
	return resp, nil
}

// StartMerge validates the request against the uploaded files, creates the
// job record and enqueues the merge task.
func (s *MergeService) StartMerge(ctx context.Context, req *model.MergeRequest) (string, error) {
	pathA, err := s.files.FindUpload(req.FileAID)
	if err != nil {
		return "", err
	}
	pathB, err := s.files.FindUpload(req.FileBID)
	if err != nil {
		return "", err
	}

	payload := &model.MergeJobPayload{
		PathA:           pathA,
		PathB:           pathB,
		JoinType:        defaultJoinType(req.JoinType),
		LeftKey:         req.LeftKey,
		RightKey:        req.RightKey,
		SelectedColumns: req.SelectedColumns,
	}
	return s.enqueueMerge(ctx, payload)
}

// StartR2Merge is the object-store variant: inputs are R2 keys, verified
// with a head request before the job exists.
func (s *MergeService) StartR2Merge(ctx context.Context, req *model.R2MergeRequest) (string, error) {
	if s.r2Client == nil {
		return "", ErrStorageUnavailable
	}
	for _, key := range []string{req.KeyA, req.KeyB} {
		ok, err := s.r2Client.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to check file: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("file %s not found in storage", key)
		}
	}

	payload := &model.MergeJobPayload{
		KeyA:            req.KeyA,
		KeyB:            req.KeyB,
		JoinType:        defaultJoinType(req.JoinType),
		LeftKey:         req.LeftKey,
		RightKey:        req.RightKey,
		SelectedColumns: req.SelectedColumns,
	}
	return s.enqueueMerge(ctx, payload)
}

func (s *MergeService) enqueueMerge(ctx context.Context, payload *model.MergeJobPayload) (string, error) {
	jobID := uuid.New().String()
	if err := s.manager.Create(ctx, jobID, model.JobTypeMerge); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	task, err := newJobTask(TaskTypeMerge, jobID, payload)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	if _, err := s.asynqClient.Enqueue(task,
		asynq.Queue("merge"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return jobID, nil
}

// R2Preview profiles a file already staged in R2.
func (s *MergeService) R2Preview(ctx context.Context, key string) (*model.FilePreviewResponse, error) {
	if s.r2Client == nil {
		return nil, ErrStorageUnavailable
	}
	ok, err := s.r2Client.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check file: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("file %s not found in storage", key)
	}

	data, err := s.r2Client.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	tbl, err := dataset.ReadBytes(data, key)
	if err != nil {
		return nil, err
	}

	return &model.FilePreviewResponse{
		Columns:  tbl.Columns,
		RowCount: tbl.RowCount(),
		Preview:  tbl.Preview(previewRows),
	}, nil
}

// ResultCSVPath resolves a local merge result for download.
func (s *MergeService) ResultCSVPath(resultID string) (string, error) {
	return s.files.FindResult(resultID)
}

// ResultExcel renders a local merge result as an XLSX workbook.
func (s *MergeService) ResultExcel(resultID string) ([]byte, error) {
	path, err := s.files.FindResult(resultID)
	if err != nil {
		return nil, err
	}
	tbl, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return tbl.ToExcelBytes("Merged")
}

// R2ResultURL presigns a download for a merge result stored in R2.
func (s *MergeService) R2ResultURL(ctx context.Context, key string) (string, error) {
	if s.r2Client == nil {
		return "", ErrStorageUnavailable
	}
	ok, err := s.r2Client.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to check result: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("result %s not found", key)
	}
	return s.r2Client.PresignGet(ctx, key, presignExpiry)
}

func defaultJoinType(jt model.JoinType) model.JoinType {
	if jt == "" {
		return model.JoinInner
	}
	return jt
}
