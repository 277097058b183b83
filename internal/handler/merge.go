package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
	"github.com/kirubashankar/tools-api/internal/service"
	"github.com/kirubashankar/tools-api/pkg/response"
)

type MergeHandler struct {
	service   *service.MergeService
	manager   *jobs.Manager
	validator *validator.Validate
}

func NewMergeHandler(svc *service.MergeService, manager *jobs.Manager, v *validator.Validate) *MergeHandler {
	return &MergeHandler{
		service:   svc,
		manager:   manager,
		validator: v,
	}
}

// Upload handles POST /api/merge/upload
func (h *MergeHandler) Upload(c *fiber.Ctx) error {
	fileHeader, data, err := readFormFile(c, "file")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	result, err := h.service.UploadFile(fileHeader.Filename, data)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return response.OK(c, result)
}

// PreviewMatch handles POST /api/merge/preview-match
func (h *MergeHandler) PreviewMatch(c *fiber.Ctx) error {
	var req model.PreviewMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	result, err := h.service.PreviewMatch(&req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return response.NotFound(c, err.Error())
		}
		return response.BadRequest(c, err.Error())
	}
	return response.OK(c, result)
}

// CreateJob handles POST /api/merge/jobs
func (h *MergeHandler) CreateJob(c *fiber.Ctx) error {
	var req model.MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	jobID, err := h.service.StartMerge(c.Context(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, model.MergeJobResponse{JobID: jobID})
}

// JobStatus handles GET /api/merge/jobs/:jobId
func (h *MergeHandler) JobStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	job := h.manager.Get(c.Context(), jobID)
	if job == nil || job.Type != model.JobTypeMerge {
		return response.NotFound(c, "Job not found")
	}
	return response.OK(c, job)
}

// DownloadResult handles GET /api/merge/results/:resultId
func (h *MergeHandler) DownloadResult(c *fiber.Ctx) error {
	path, err := h.service.ResultCSVPath(c.Params("resultId"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return c.Download(path, "merged.csv")
}

// DownloadResultExcel handles GET /api/merge/results/:resultId/excel
func (h *MergeHandler) DownloadResultExcel(c *fiber.Ctx) error {
	data, err := h.service.ResultExcel(c.Params("resultId"))
	if err != nil {
		return serviceError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="merged.xlsx"`)
	return c.Send(data)
}

// R2Preview handles POST /api/merge/r2/preview
func (h *MergeHandler) R2Preview(c *fiber.Ctx) error {
	var req model.R2PreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	result, err := h.service.R2Preview(c.Context(), req.Key)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}

// R2CreateJob handles POST /api/merge/r2/jobs
func (h *MergeHandler) R2CreateJob(c *fiber.Ctx) error {
	var req model.R2MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	jobID, err := h.service.StartR2Merge(c.Context(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, model.MergeJobResponse{JobID: jobID})
}

// R2ResultURL handles GET /api/merge/r2/results/+
func (h *MergeHandler) R2ResultURL(c *fiber.Ctx) error {
	key := c.Params("+")
	if key == "" {
		return response.BadRequest(c, "Result key is required")
	}

	url, err := h.service.R2ResultURL(c.Context(), key)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.DownloadURLResponse{DownloadURL: url})
}
