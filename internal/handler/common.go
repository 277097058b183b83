package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/kirubashankar/tools-api/internal/service"
	"github.com/kirubashankar/tools-api/pkg/response"
)

// serviceError maps service-layer failures onto the uniform error body.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrStorageUnavailable):
		return response.ServiceUnavailable(c, err.Error())
	case strings.Contains(err.Error(), "not found"):
		return response.NotFound(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

// formatValidationErrors flattens validator output into one readable string
// for the uniform error body.
func formatValidationErrors(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field(), e.Tag()))
	}
	return "Validation failed: " + strings.Join(parts, "; ")
}

// readFormFile pulls a multipart upload into memory.
func readFormFile(c *fiber.Ctx, field string) (*multipart.FileHeader, []byte, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil, nil, fmt.Errorf("file is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return fileHeader, data, nil
}
