// File path: internal/sandbox/client.go
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmcasey/codeloom/internal/common"
)

// Target is the execution-sandbox capability consumed by the pipeline. The
// sandbox is opaque: files in, restart signal, health out.
type Target interface {
	Apply(ctx context.Context, projectID string, files map[string]string, deleted []string) error
	Restart(ctx context.Context, projectID string) error
	Health(ctx context.Context, projectID string) (HealthStatus, error)
}

// HealthStatus is the sandbox readiness report.
type HealthStatus struct {
	Ready   bool   `json:"ready"`
	Detail  string `json:"detail,omitempty"`
	Version string `json:"version,omitempty"`
}

// Client talks to a live execution sandbox over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cfg        Config
}

func NewFromEnv() (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

func New(cfg Config) *Client {
	common.Logger().Info("sandbox: client configured", "url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		cfg:        cfg,
	}
}

// Apply pushes a file-write set plus deletions to the sandbox workspace.
func (c *Client) Apply(ctx context.Context, projectID string, files map[string]string, deleted []string) error {
	if c == nil {
		return errors.New("sandbox client not configured")
	}
	payload := map[string]interface{}{
		"project": projectID,
		"files":   files,
		"deleted": deleted,
	}
	endpoint := fmt.Sprintf("%s/api/v1/apply", c.baseURL)
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		return fmt.Errorf("sandbox apply: %w", err)
	}
	common.Logger().Info("sandbox: files applied", "project", projectID, "files", len(files), "deleted", len(deleted))
	return nil
}

// Restart signals the sandbox to restart its dev process and waits for it
// to report ready again.
func (c *Client) Restart(ctx context.Context, projectID string) error {
	if c == nil {
		return errors.New("sandbox client not configured")
	}
	endpoint := fmt.Sprintf("%s/api/v1/restart", c.baseURL)
	if err := c.doRequest(ctx, http.MethodPost, endpoint, map[string]string{"project": projectID}, nil); err != nil {
		return fmt.Errorf("sandbox restart: %w", err)
	}

	deadline := time.Now().Add(c.cfg.RestartWait)
	for time.Now().Before(deadline) {
		status, err := c.Health(ctx, projectID)
		if err == nil && status.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("sandbox restart: not ready after %s", c.cfg.RestartWait)
}

// Health queries sandbox readiness.
func (c *Client) Health(ctx context.Context, projectID string) (HealthStatus, error) {
	if c == nil {
		return HealthStatus{}, errors.New("sandbox client not configured")
	}
	endpoint := fmt.Sprintf("%s/api/v1/health?project=%s", c.baseURL, projectID)
	var status HealthStatus
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
		return HealthStatus{}, fmt.Errorf("sandbox health: %w", err)
	}
	return status, nil
}

var _ Target = (*Client)(nil)

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
