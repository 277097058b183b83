package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
	"github.com/kirubashankar/tools-api/internal/service"
	"github.com/kirubashankar/tools-api/pkg/response"
)

type ValidationHandler struct {
	service   *service.ValidationService
	manager   *jobs.Manager
	validator *validator.Validate
}

func NewValidationHandler(svc *service.ValidationService, manager *jobs.Manager, v *validator.Validate) *ValidationHandler {
	return &ValidationHandler{
		service:   svc,
		manager:   manager,
		validator: v,
	}
}

// Validate handles POST /api/validate/validate (synchronous small batch)
func (h *ValidationHandler) Validate(c *fiber.Ctx) error {
	var req model.ValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	results, err := h.service.ValidateDomains(c.Context(), req.Domains)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return response.OK(c, model.ValidateResponse{Results: results})
}

// UploadURL handles POST /api/validate/upload-url
func (h *ValidationHandler) UploadURL(c *fiber.Ctx) error {
	var req model.UploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	result, err := h.service.CreateUploadURL(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrStorageUnavailable) {
			return serviceError(c, err)
		}
		return response.BadRequest(c, err.Error())
	}
	return response.OK(c, result)
}

// Preview handles POST /api/validate/preview
func (h *ValidationHandler) Preview(c *fiber.Ctx) error {
	var req model.FilePreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	result, err := h.service.PreviewFile(c.Context(), req.Key)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}

// CreateJob handles POST /api/validate/jobs
func (h *ValidationHandler) CreateJob(c *fiber.Ctx) error {
	var req model.ValidationJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	jobID, err := h.service.StartValidation(c.Context(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, model.ValidationJobResponse{JobID: jobID})
}

// ValidateFile handles POST /api/validate/validate-file (direct multipart)
func (h *ValidationHandler) ValidateFile(c *fiber.Ctx) error {
	fileHeader, data, err := readFormFile(c, "file")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	emailColumn := c.FormValue("emailColumn")
	if emailColumn == "" {
		return response.BadRequest(c, "emailColumn is required")
	}

	jobID, err := h.service.StartFileValidation(c.Context(), fileHeader.Filename, data, emailColumn)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return response.Accepted(c, model.ValidationJobResponse{JobID: jobID})
}

// JobStatus handles GET /api/validate/jobs/:jobId
func (h *ValidationHandler) JobStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	job := h.manager.Get(c.Context(), jobID)
	if job == nil || job.Type != model.JobTypeEmailValidation {
		return response.NotFound(c, "Job not found")
	}
	return response.OK(c, job)
}

// ResultURL handles GET /api/validate/results/+
func (h *ValidationHandler) ResultURL(c *fiber.Ctx) error {
	key := c.Params("+")
	if key == "" {
		return response.BadRequest(c, "Result key is required")
	}

	url, err := h.service.ResultURL(c.Context(), key)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.DownloadURLResponse{DownloadURL: url})
}

// Download handles GET /api/validate/download/:jobId (local-file jobs)
func (h *ValidationHandler) Download(c *fiber.Ctx) error {
	path, err := h.service.LocalResultPath(c.Params("jobId"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return c.Download(path, "validated.csv")
}
