package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lei/screwpipe/internal/scm"
	"github.com/lei/screwpipe/pkg/logger"
)

// Client handles HTTP communication with the GitHub REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new GitHub API client
func NewClient(baseURL string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
}

// doRequest performs an authenticated HTTP request
func (c *Client) doRequest(ctx context.Context, method, path, token string) (*http.Response, error) {
	c.logger.Debug("scm: http request", "method", method, "path", path)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("scm: http request failed",
			"method", method,
			"path", path,
			"error", err)
		return nil, fmt.Errorf("%w: %v", scm.ErrUnavailable, err)
	}

	c.logger.Debug("scm: http response",
		"method", method,
		"path", path,
		"status", resp.StatusCode)
	return resp, nil
}

// getJSON performs a GET and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, path, token string, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return scm.ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", scm.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scm error %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
