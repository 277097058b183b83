package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/kirubashankar/tools-api/internal/client"
	"github.com/kirubashankar/tools-api/internal/dataset"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
	"github.com/kirubashankar/tools-api/internal/mx"
)

// syncValidationLimit caps the synchronous endpoint; bigger lists go through
// the background job path.
const syncValidationLimit = 50

// ValidationService handles email validation: the synchronous domain check
// and background jobs for uploaded files (local or staged in R2).
type ValidationService struct {
	files       *FileService
	manager     *jobs.Manager
	asynqClient *asynq.Client
	r2Client    client.StorageClient
	checker     *mx.Checker
}

func NewValidationService(files *FileService, manager *jobs.Manager, asynqClient *asynq.Client, r2Client client.StorageClient, checker *mx.Checker) *ValidationService {
	return &ValidationService{
		files:       files,
		manager:     manager,
		asynqClient: asynqClient,
		r2Client:    r2Client,
		checker:     checker,
	}
}

// ValidateDomains checks a small batch of domains synchronously.
func (s *ValidationService) ValidateDomains(ctx context.Context, domains []string) (map[string]bool, error) {
	if len(domains) > syncValidationLimit {
		return nil, fmt.Errorf("too many domains (max %d); use a validation job for larger lists", syncValidationLimit)
	}
	return s.checker.CheckDomains(ctx, domains), nil
}

// CreateUploadURL presigns a direct-to-bucket PUT so large files skip the
// application server.
func (s *ValidationService) CreateUploadURL(ctx context.Context, req *model.UploadURLRequest) (*model.UploadURLResponse, error) {
	if s.r2Client == nil {
		return nil, ErrStorageUnavailable
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("unsupported file type %q (use .csv or .xlsx)", ext)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("validation/uploads/%s%s", uuid.New().String(), ext)
	url, err := s.r2Client.PresignPut(ctx, key, contentType, presignExpiry)
	if err != nil {
		return nil, err
	}

	return &model.UploadURLResponse{
		UploadURL: url,
		Key:       key,
		ExpiresIn: int(presignExpiry.Seconds()),
	}, nil
}

// PreviewFile profiles a staged file so the client can pick the email column.
func (s *ValidationService) PreviewFile(ctx context.Context, key string) (*model.FilePreviewResponse, error) {
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

// StartValidation creates a validation job over a file already staged in R2.
// The object must exist before the job record does.
func (s *ValidationService) StartValidation(ctx context.Context, req *model.ValidationJobRequest) (string, error) {
	if s.r2Client == nil {
		return "", ErrStorageUnavailable
	}
	ok, err := s.r2Client.Exists(ctx, req.Key)
	if err != nil {
		return "", fmt.Errorf("failed to check file: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("file %s not found in storage", req.Key)
	}

	payload := &model.ValidationJobPayload{
		Key:         req.Key,
		EmailColumn: req.EmailColumn,
	}
	return s.enqueueValidation(ctx, payload)
}

// StartFileValidation is the direct multipart path: the file is saved
// locally and the email column verified before the job is created.
func (s *ValidationService) StartFileValidation(ctx context.Context, filename string, data []byte, emailColumn string) (string, error) {
	tbl, err := dataset.ReadBytes(data, filename)
	if err != nil {
		return "", err
	}
	if tbl.ColumnIndex(emailColumn) < 0 {
		return "", fmt.Errorf("column %q not found in file", emailColumn)
	}

	_, path, err := s.files.SaveUpload(filename, data)
	if err != nil {
		return "", err
	}

	payload := &model.ValidationJobPayload{
		Path:        path,
		EmailColumn: emailColumn,
	}
	return s.enqueueValidation(ctx, payload)
}

func (s *ValidationService) enqueueValidation(ctx context.Context, payload *model.ValidationJobPayload) (string, error) {
	jobID := uuid.New().String()
	if err := s.manager.Create(ctx, jobID, model.JobTypeEmailValidation); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	task, err := newJobTask(TaskTypeValidation, jobID, payload)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	if _, err := s.asynqClient.Enqueue(task,
		asynq.Queue("validate"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return jobID, nil
}

// ResultURL presigns a download for a validated file stored in R2.
func (s *ValidationService) ResultURL(ctx context.Context, key string) (string, error) {
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

// LocalResultPath resolves the validated CSV written by a local-file job.
func (s *ValidationService) LocalResultPath(jobID string) (string, error) {
	return s.files.ResolveResultFile(fmt.Sprintf("%s_validated.csv", jobID))
}
