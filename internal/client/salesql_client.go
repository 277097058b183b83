package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirubashankar/tools-api/internal/cache"
	"github.com/kirubashankar/tools-api/internal/config"
)

const (
	salesqlCacheNamespace = "salesql_cache"
	salesqlMaxAttempts    = 3
)

// ContactEnricher defines the interface for person enrichment by LinkedIn URL
type ContactEnricher interface {
	EnrichContact(ctx context.Context, linkedinURL string) ([]ContactRow, error)
}

// SalesQLClient implements ContactEnricher for the SalesQL API
type SalesQLClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *cache.Cache

	// sleep is swappable so retry tests do not wait on real backoff.
	sleep func(time.Duration)
}

// ContactRow is one enriched contact email. A person with several emails
// produces several rows.
type ContactRow struct {
	LinkedInURL string `json:"linkedinUrl"`
	FullName    string `json:"fullName"`
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	Email       string `json:"email"`
	EmailType   string `json:"emailType,omitempty"`
	EmailStatus string `json:"emailStatus,omitempty"`
}

type salesqlPerson struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Title        string `json:"title"`
	Organization struct {
		Name string `json:"name"`
	} `json:"organization"`
	Emails []struct {
		Email  string `json:"email"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"emails"`
}

// NewSalesQLClient creates a new SalesQL API client
func NewSalesQLClient(cfg *config.SalesQLConfig, c *cache.Cache) *SalesQLClient {
	return &SalesQLClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		cache:   c,
		sleep:   time.Sleep,
	}
}

// NormalizeLinkedInURL validates a LinkedIn profile URL and canonicalizes it
// (https scheme, www host, no query, no trailing slash) so the same profile
// always hits the same cache entry.
func NormalizeLinkedInURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("linkedin URL is empty")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%q is not a valid URL", raw)
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	if host != "linkedin.com" {
		return "", fmt.Errorf("%q is not a linkedin.com URL", raw)
	}
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasPrefix(path, "/in/") || len(path) <= len("/in/") {
		return "", fmt.Errorf("%q is not a profile URL (expected /in/...)", raw)
	}
	return "https://www.linkedin.com/in/" + strings.TrimPrefix(path, "/in/"), nil
}

// EnrichContact looks up a person by profile URL and returns one row per
// known email, or a single Not Found placeholder row. Only results that
// carry emails are cached; misses stay retryable.
func (c *SalesQLClient) EnrichContact(ctx context.Context, linkedinURL string) ([]ContactRow, error) {
	normalized, err := NormalizeLinkedInURL(linkedinURL)
	if err != nil {
		return nil, err
	}

	if data, ok := c.cache.Get(ctx, salesqlCacheNamespace, normalized); ok {
		var rows []ContactRow
		if err := json.Unmarshal(data, &rows); err == nil {
			return rows, nil
		}
	}

	person, err := c.fetchPerson(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if person == nil {
		return []ContactRow{{LinkedInURL: normalized, FullName: "Not Found", Email: "Not Found"}}, nil
	}

	fullName := strings.TrimSpace(person.FirstName + " " + person.LastName)
	rows := make([]ContactRow, 0, len(person.Emails))
	for _, e := range person.Emails {
		if e.Email == "" {
			continue
		}
		rows = append(rows, ContactRow{
			LinkedInURL: normalized,
			FullName:    fullName,
			Title:       person.Title,
			Company:     person.Organization.Name,
			Email:       e.Email,
			EmailType:   e.Type,
			EmailStatus: e.Status,
		})
	}
	if len(rows) == 0 {
		return []ContactRow{{LinkedInURL: normalized, FullName: fullName, Title: person.Title,
			Company: person.Organization.Name, Email: "Not Found"}}, nil
	}

	c.cache.Set(ctx, salesqlCacheNamespace, normalized, rows)
	return rows, nil
}

// fetchPerson performs the API call with retries. A definitive not-found
// (404) returns (nil, nil) immediately; rate limits honor Retry-After; server
// errors and timeouts back off exponentially. Exhausting all attempts is
// treated as not found rather than failing the whole batch.
func (c *SalesQLClient) fetchPerson(ctx context.Context, linkedinURL string) (*salesqlPerson, error) {
	endpoint := c.baseURL + "/persons/enrich?linkedin_url=" + url.QueryEscape(linkedinURL)

	for attempt := 1; attempt <= salesqlMaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[SalesQL API] attempt %d failed: %v", attempt, err)
			c.sleep(time.Duration(1<<attempt) * time.Second)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			delay := time.Duration(10*attempt) * time.Second
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			log.Printf("[SalesQL API] rate limited, waiting %v", delay)
			c.sleep(delay)
			continue
		case resp.StatusCode >= 500:
			log.Printf("[SalesQL API] server error %d on attempt %d", resp.StatusCode, attempt)
			c.sleep(time.Duration(1<<attempt) * time.Second)
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("salesql API error (status %d): %s", resp.StatusCode, string(body))
		}

		var person salesqlPerson
		if err := json.Unmarshal(body, &person); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return &person, nil
	}

	log.Printf("[SalesQL API] giving up on %s after %d attempts", linkedinURL, salesqlMaxAttempts)
	return nil, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SalesQLClient) IsConfigured() bool {
	return c.apiKey != ""
}
