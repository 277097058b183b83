package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kirubashankar/tools-api/internal/cache"
	"github.com/kirubashankar/tools-api/internal/config"
)

const apolloCacheNamespace = "apollo_cache"

var domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// CompanyEnricher defines the interface for bulk company enrichment
type CompanyEnricher interface {
	BulkEnrich(ctx context.Context, domains []string) ([]CompanyRecord, error)
}

// ApolloClient implements CompanyEnricher for the Apollo API
type ApolloClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *cache.Cache
}

// CompanyRecord is the flat company row extracted from an enrichment response
type CompanyRecord struct {
	Domain        string `json:"domain"`
	Name          string `json:"name"`
	WebsiteURL    string `json:"websiteUrl,omitempty"`
	LinkedInURL   string `json:"linkedinUrl,omitempty"`
	Industry      string `json:"industry,omitempty"`
	EmployeeCount int    `json:"employeeCount,omitempty"`
	FoundedYear   int    `json:"foundedYear,omitempty"`
	City          string `json:"city,omitempty"`
	Country       string `json:"country,omitempty"`
}

type apolloOrganization struct {
	Name                  string `json:"name"`
	PrimaryDomain         string `json:"primary_domain"`
	WebsiteURL            string `json:"website_url"`
	LinkedInURL           string `json:"linkedin_url"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	FoundedYear           int    `json:"founded_year"`
	City                  string `json:"city"`
	Country               string `json:"country"`
}

type apolloBulkResponse struct {
	Organizations []*apolloOrganization `json:"organizations"`
}

// NewApolloClient creates a new Apollo API client
func NewApolloClient(cfg *config.ApolloConfig, c *cache.Cache) *ApolloClient {
	return &ApolloClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		cache:   c,
	}
}

// NormalizeDomain validates and canonicalizes a company domain. Full URLs,
// www prefixes and email addresses are rejected so callers get a clear error
// instead of a silent enrichment miss.
func NormalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return "", fmt.Errorf("domain is empty")
	}
	if strings.Contains(d, "@") {
		return "", fmt.Errorf("%q looks like an email address, expected a domain", raw)
	}
	if strings.Contains(d, "://") {
		return "", fmt.Errorf("%q is a URL, expected a bare domain", raw)
	}
	if strings.HasPrefix(d, "www.") {
		return "", fmt.Errorf("%q has a www prefix, expected a bare domain", raw)
	}
	if !domainPattern.MatchString(d) {
		return "", fmt.Errorf("%q is not a valid domain", raw)
	}
	return d, nil
}

// BulkEnrich resolves company records for a list of domains, serving cached
// domains locally and batching the rest into one API call.
func (c *ApolloClient) BulkEnrich(ctx context.Context, domains []string) ([]CompanyRecord, error) {
	records := make([]CompanyRecord, 0, len(domains))
	var misses []string

	for _, d := range domains {
		if data, ok := c.cache.Get(ctx, apolloCacheNamespace, d); ok {
			var rec CompanyRecord
			if err := json.Unmarshal(data, &rec); err == nil {
				records = append(records, rec)
				continue
			}
		}
		misses = append(misses, d)
	}

	if len(misses) == 0 {
		return records, nil
	}

	log.Printf("[Apollo API] enriching %d domains (%d cached)", len(misses), len(records))

	body, err := json.Marshal(map[string][]string{"domains": misses})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/organizations/bulk_enrich", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("apollo API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed apolloBulkResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	found := make(map[string]CompanyRecord, len(parsed.Organizations))
	for _, org := range parsed.Organizations {
		if org == nil {
			continue
		}
		rec := CompanyRecord{
			Domain:        strings.ToLower(org.PrimaryDomain),
			Name:          org.Name,
			WebsiteURL:    org.WebsiteURL,
			LinkedInURL:   org.LinkedInURL,
			Industry:      org.Industry,
			EmployeeCount: org.EstimatedNumEmployees,
			FoundedYear:   org.FoundedYear,
			City:          org.City,
			Country:       org.Country,
		}
		if rec.Domain != "" {
			found[rec.Domain] = rec
		}
	}

	for _, d := range misses {
		rec, ok := found[d]
		if !ok {
			// Keep one row per requested domain so callers can line
			// results up with their input.
			rec = CompanyRecord{Domain: d, Name: "Not Found"}
		} else {
			c.cache.Set(ctx, apolloCacheNamespace, d, rec)
		}
		records = append(records, rec)
	}

	return records, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ApolloClient) IsConfigured() bool {
	return c.apiKey != ""
}
