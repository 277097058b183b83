package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/kirubashankar/tools-api/internal/cache"
	"github.com/kirubashankar/tools-api/internal/handler"
	"github.com/kirubashankar/tools-api/internal/jobs"
	"github.com/kirubashankar/tools-api/internal/model"
	"github.com/kirubashankar/tools-api/internal/mx"
	"github.com/kirubashankar/tools-api/internal/service"
)

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	manager *jobs.Manager
}

// stubResolver answers MX lookups from a fixed table: listed domains have a
// record, everything else is NXDOMAIN.
type stubResolver struct {
	withMX map[string]bool
}

func (r *stubResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	if r.withMX[domain] {
		return []*net.MX{{Host: "mail." + domain, Pref: 10}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: domain, IsNotFound: true}
}

// stubResearcher fills every requested field with a fixed value.
type stubResearcher struct{}

func (stubResearcher) Research(ctx context.Context, entity string, rowContext map[string]string, fields []model.ResearchField) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Name] = "researched:" + entity
	}
	return out
}

// setupApp builds a Fiber app wired like main.go but self-contained: in-memory
// job store, temp dirs for files, no cloud storage, stubbed DNS and research.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	validate := validator.New()
	manager := jobs.NewManager(jobs.NewMemoryStore())

	fileService := service.NewFileService(t.TempDir(), t.TempDir())
	if err := fileService.EnsureDirs(); err != nil {
		t.Fatalf("failed to create storage dirs: %v", err)
	}

	// Asynq client is only dialed on enqueue; job-creation routes are not
	// exercised here (worker tests cover the job lifecycle end to end).
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: "localhost:6379", DB: 15})
	t.Cleanup(func() { asynqClient.Close() })

	checker := mx.NewChecker(&stubResolver{withMX: map[string]bool{
		"good.com":    true,
		"example.org": true,
	}})

	resultCache := cache.New(t.TempDir(), 30, nil, "")

	mergeService := service.NewMergeService(fileService, manager, asynqClient, nil)
	validationService := service.NewValidationService(fileService, manager, asynqClient, nil, checker)
	researchService := service.NewResearchService(manager, stubResearcher{}, resultCache, fileService)

	mergeHandler := handler.NewMergeHandler(mergeService, manager, validate)
	validationHandler := handler.NewValidationHandler(validationService, manager, validate)
	researchHandler := handler.NewResearchHandler(researchService, validate)

	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"r2":         false,
				"perplexity": false,
			},
		})
	})

	api := app.Group("/api")

	merge := api.Group("/merge")
	merge.Post("/upload", mergeHandler.Upload)
	merge.Post("/preview-match", mergeHandler.PreviewMatch)
	merge.Post("/jobs", mergeHandler.CreateJob)
	merge.Get("/jobs/:jobId", mergeHandler.JobStatus)
	merge.Get("/results/:resultId/excel", mergeHandler.DownloadResultExcel)
	merge.Get("/results/:resultId", mergeHandler.DownloadResult)
	merge.Post("/r2/preview", mergeHandler.R2Preview)
	merge.Post("/r2/jobs", mergeHandler.R2CreateJob)
	merge.Get("/r2/results/+", mergeHandler.R2ResultURL)

	val := api.Group("/validate")
	val.Post("/validate", validationHandler.Validate)
	val.Post("/upload-url", validationHandler.UploadURL)
	val.Post("/preview", validationHandler.Preview)
	val.Post("/jobs", validationHandler.CreateJob)
	val.Get("/jobs/:jobId", validationHandler.JobStatus)
	val.Post("/validate-file", validationHandler.ValidateFile)
	val.Get("/download/:jobId", validationHandler.Download)
	val.Get("/results/+", validationHandler.ResultURL)

	research := api.Group("/research")
	research.Get("/field-types", researchHandler.FieldTypes)
	research.Post("/upload", researchHandler.Upload)
	research.Post("/run", researchHandler.Run)
	research.Get("/progress/:runId", researchHandler.Progress)
	research.Get("/results/:runId", researchHandler.Results)
	research.Post("/stop/:runId", researchHandler.Stop)
	research.Get("/download/:filename", researchHandler.Download)
	research.Get("/history", researchHandler.History)
	research.Delete("/runs", researchHandler.DeleteRuns)

	return &testApp{app: app, manager: manager}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

// doUpload posts a multipart file to the given path.
func doUpload(t *testing.T, app *fiber.App, path, filename, content string, extra map[string]string) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for k, v := range extra {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
