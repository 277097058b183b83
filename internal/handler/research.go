package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kirubashankar/tools-api/internal/model"
	"github.com/kirubashankar/tools-api/internal/service"
	"github.com/kirubashankar/tools-api/pkg/response"
)

type ResearchHandler struct {
	service   *service.ResearchService
	validator *validator.Validate
}

func NewResearchHandler(svc *service.ResearchService, v *validator.Validate) *ResearchHandler {
	return &ResearchHandler{
		service:   svc,
		validator: v,
	}
}

// FieldTypes handles GET /api/research/field-types
func (h *ResearchHandler) FieldTypes(c *fiber.Ctx) error {
	return response.OK(c, model.FieldTypeDescriptions)
}

// Upload handles POST /api/research/upload
func (h *ResearchHandler) Upload(c *fiber.Ctx) error {
	_, data, err := readFormFile(c, "file")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	result, err := h.service.UploadCSV(data)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return response.OK(c, result)
}

// Run handles POST /api/research/run
func (h *ResearchHandler) Run(c *fiber.Ctx) error {
	var req model.RunResearchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	runID, err := h.service.StartRun(c.Context(), &req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return response.NotFound(c, err.Error())
		}
		return response.BadRequest(c, err.Error())
	}
	return response.Accepted(c, model.RunResearchResponse{RunID: runID})
}

// Progress handles GET /api/research/progress/:runId
func (h *ResearchHandler) Progress(c *fiber.Ctx) error {
	progress, job, err := h.service.Progress(c.Context(), c.Params("runId"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.OK(c, fiber.Map{
		"runId":    job.ID,
		"status":   job.Status,
		"message":  job.Message,
		"progress": progress,
	})
}

// Results handles GET /api/research/results/:runId?offset=
func (h *ResearchHandler) Results(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	result, err := h.service.Results(c.Context(), c.Params("runId"), offset)
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.OK(c, result)
}

// Stop handles POST /api/research/stop/:runId
func (h *ResearchHandler) Stop(c *fiber.Ctx) error {
	result, err := h.service.Stop(c.Context(), c.Params("runId"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.OK(c, result)
}

// Download handles GET /api/research/download/:filename
func (h *ResearchHandler) Download(c *fiber.Ctx) error {
	path, err := h.service.DownloadPath(c.Params("filename"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return c.Download(path, c.Params("filename"))
}

// History handles GET /api/research/history
func (h *ResearchHandler) History(c *fiber.Ctx) error {
	return response.OK(c, h.service.History(c.Context()))
}

// DeleteRuns handles DELETE /api/research/runs
func (h *ResearchHandler) DeleteRuns(c *fiber.Ctx) error {
	var req model.DeleteRunsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.BadRequest(c, formatValidationErrors(err))
	}

	deleted := h.service.DeleteRuns(c.Context(), req.IDs)
	return response.OK(c, model.DeleteRunsResponse{Success: true, DeletedCount: deleted})
}
