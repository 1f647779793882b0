// Package remotelog mirrors session progress to the remote job-log API.
package remotelog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/timmy/scrapetrack/internal/domain"
)

const logsPath = "/scrape-logs"

// Client defines the remote job-log operations.
type Client interface {
	// Create records a new log row and returns its remote ID.
	Create(ctx context.Context, entry domain.LogEntry) (string, error)

	// Update applies a partial entry to an existing row.
	Update(ctx context.Context, id string, entry domain.LogEntry) error
}

// Config holds configuration for the HTTP client
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// HTTPClient talks to the remote job-log REST API.
type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient creates a new remote log client
func NewHTTPClient(cfg *Config) *HTTPClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
	}

	return &HTTPClient{client: client}
}

type createResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Create posts a new scrape log entry.
func (c *HTTPClient) Create(ctx context.Context, entry domain.LogEntry) (string, error) {
	var resp createResponse
	var apiErr errorResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(entry).
		SetResult(&resp).
		SetError(&apiErr).
		Post(logsPath)

	if err != nil {
		return "", fmt.Errorf("failed to call remote log API: %w", err)
	}
	if httpResp.IsError() {
		return "", statusError(httpResp.StatusCode(), apiErr.Error)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("remote log API returned no id")
	}
	return resp.ID, nil
}

// Update patches an existing scrape log entry.
func (c *HTTPClient) Update(ctx context.Context, id string, entry domain.LogEntry) error {
	var apiErr errorResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetBody(entry).
		SetError(&apiErr).
		Patch(logsPath + "/{id}")

	if err != nil {
		return fmt.Errorf("failed to call remote log API: %w", err)
	}
	if httpResp.IsError() {
		return statusError(httpResp.StatusCode(), apiErr.Error)
	}
	return nil
}

func statusError(status int, detail string) error {
	if detail != "" {
		return fmt.Errorf("remote log API error: status %d: %s", status, detail)
	}
	return fmt.Errorf("remote log API error: status %d", status)
}

// Discard is used when no remote log API is configured.
type Discard struct{}

// Create returns a locally generated ID.
func (Discard) Create(context.Context, domain.LogEntry) (string, error) {
	return uuid.New().String(), nil
}

// Update does nothing.
func (Discard) Update(context.Context, string, domain.LogEntry) error {
	return nil
}
