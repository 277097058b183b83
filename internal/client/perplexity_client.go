package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirubashankar/tools-api/internal/config"
	"github.com/kirubashankar/tools-api/internal/model"
)

const perplexityMaxAttempts = 3

// Researcher defines the interface for structured entity research
type Researcher interface {
	Research(ctx context.Context, entity string, rowContext map[string]string, fields []model.ResearchField) map[string]string
}

// PerplexityClient implements Researcher against the Perplexity chat API
type PerplexityClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string

	sleep func(time.Duration)
}

type perplexityRequest struct {
	Model          string                   `json:"model"`
	Messages       []perplexityMessage      `json:"messages"`
	ResponseFormat perplexityResponseFormat `json:"response_format"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponseFormat struct {
	Type       string               `json:"type"`
	JSONSchema perplexityJSONSchema `json:"json_schema"`
}

type perplexityJSONSchema struct {
	Schema map[string]interface{} `json:"schema"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewPerplexityClient creates a new Perplexity API client
func NewPerplexityClient(cfg *config.PerplexityConfig) *PerplexityClient {
	return &PerplexityClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		sleep:   time.Sleep,
	}
}

// BuildSchema converts field configs into the JSON schema the model is asked
// to fill. Optional fields are left out of the required list.
func BuildSchema(fields []model.ResearchField) map[string]interface{} {
	properties := make(map[string]interface{}, len(fields))
	var required []string

	for _, f := range fields {
		prop := map[string]interface{}{}
		switch f.Type {
		case model.FieldNumeric:
			prop["type"] = "number"
		case model.FieldBoolean:
			prop["type"] = "boolean"
		case model.FieldYesNo:
			prop["type"] = "string"
			prop["enum"] = []string{"Yes", "No", "Unknown"}
		case model.FieldCustomEnum:
			prop["type"] = "string"
			if len(f.EnumValues) > 0 {
				prop["enum"] = f.EnumValues
			}
		case model.FieldURL:
			prop["type"] = "string"
			prop["format"] = "uri"
		default:
			prop["type"] = "string"
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		properties[f.Name] = prop
		if !f.Optional {
			required = append(required, f.Name)
		}
	}

	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Research asks the model to fill the configured fields for one entity.
// Failures degrade to an empty field map so a single bad lookup never kills
// the batch it belongs to.
func (c *PerplexityClient) Research(ctx context.Context, entity string, rowContext map[string]string, fields []model.ResearchField) map[string]string {
	prompt := buildPrompt(entity, rowContext, fields)

	reqBody := perplexityRequest{
		Model: c.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: "You are a precise research assistant. Answer only from verifiable information and use \"Unknown\" when you cannot verify a value. Respond with JSON matching the provided schema."},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: perplexityResponseFormat{
			Type:       "json_schema",
			JSONSchema: perplexityJSONSchema{Schema: BuildSchema(fields)},
		},
	}

	content, err := c.complete(ctx, &reqBody)
	if err != nil {
		log.Printf("[Perplexity API] research failed for %q: %v", entity, err)
		return map[string]string{}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		log.Printf("[Perplexity API] unparseable answer for %q: %v", entity, err)
		return map[string]string{}
	}

	result := make(map[string]string, len(parsed))
	for k, v := range parsed {
		result[k] = stringify(v)
	}
	return result
}

func buildPrompt(entity string, rowContext map[string]string, fields []model.ResearchField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research the following entity: %s\n", entity)
	if len(rowContext) > 0 {
		b.WriteString("Known context:\n")
		for k, v := range rowContext {
			if v != "" {
				fmt.Fprintf(&b, "- %s: %s\n", k, v)
			}
		}
	}
	b.WriteString("Find the following information:\n")
	for _, f := range fields {
		desc := f.Description
		if desc == "" {
			desc = model.FieldTypeDescriptions[f.Type]
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, desc)
	}
	return b.String()
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

func (c *PerplexityClient) complete(ctx context.Context, reqBody *perplexityRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 1; attempt <= perplexityMaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Printf("[Perplexity API] attempt %d failed: %v", attempt, err)
			c.sleep(time.Duration(1<<attempt) * time.Second)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", fmt.Errorf("failed to read response: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := time.Duration(10*attempt) * time.Second
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			log.Printf("[Perplexity API] rate limited, waiting %v", delay)
			c.sleep(delay)
			continue
		}
		if resp.StatusCode >= 500 {
			log.Printf("[Perplexity API] server error %d on attempt %d", resp.StatusCode, attempt)
			c.sleep(time.Duration(1<<attempt) * time.Second)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("perplexity API error (status %d): %s", resp.StatusCode, string(body))
		}

		var parsed perplexityResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("empty completion")
		}
		return parsed.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("exhausted %d attempts", perplexityMaxAttempts)
}

// IsConfigured returns true if the client has valid configuration
func (c *PerplexityClient) IsConfigured() bool {
	return c.apiKey != ""
}
