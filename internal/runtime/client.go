// Package runtime talks to the local Ollama-compatible model runtime
// over its loopback HTTP API.
package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"modelforge/internal/logging"
)

const (
	// DefaultEndpoint is the runtime's default loopback control endpoint.
	DefaultEndpoint = "http://localhost:11434"
	// pingTimeout bounds a single liveness probe.
	pingTimeout = 10 * time.Second
)

// Model is one entry from the runtime's inventory.
type Model struct {
	Name string
	Size int64
}

// Client drives the model runtime's fetch and inventory operations.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a runtime client for the given control endpoint.
func NewClient(endpoint string, logger *logging.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Endpoint returns the configured control endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// listResponse represents the response from the /api/tags inventory query
type listResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

// pullProgress represents a progress event from the pull stream
type pullProgress struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ping checks that the runtime daemon answers on its control endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create liveness request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runtime unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runtime returned status %d", resp.StatusCode)
	}
	return nil
}

// PingWithRetries probes the runtime, retrying with a fixed delay.
func (c *Client) PingWithRetries(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if lastErr = c.Ping(ctx); lastErr == nil {
			return nil
		}
		if i < maxRetries-1 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("runtime liveness check failed after %d retries: %w", maxRetries, lastErr)
}

// List returns the runtime's installed-model inventory.
func (c *Client) List(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runtime API returned status %d", resp.StatusCode)
	}

	var listResp listResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("failed to decode inventory response: %w", err)
	}

	models := make([]Model, len(listResp.Models))
	for i, m := range listResp.Models {
		models[i] = Model{Name: m.Name, Size: m.Size}
	}
	return models, nil
}

// Pull fetches a model through the runtime, streaming progress events
// until the runtime reports success or an error line. The context bounds
// the whole download; callers classify the returned error text.
func (c *Client) Pull(ctx context.Context, modelID string) error {
	c.logger.Info("runtime.pull.started", "Starting model pull", map[string]interface{}{
		"model": modelID,
	})

	reqBody, err := json.Marshal(map[string]string{"name": modelID})
	if err != nil {
		return fmt.Errorf("failed to marshal pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/pull", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("runtime.pull.failed", "Failed to start pull", map[string]interface{}{
			"model": modelID,
			"error": err.Error(),
		})
		return fmt.Errorf("failed to pull model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("runtime API returned status %d: %s", resp.StatusCode, string(body))
	}

	// Read progress stream
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var lastStatus string

	for scanner.Scan() {
		line := scanner.Bytes()

		var progress pullProgress
		if err := json.Unmarshal(line, &progress); err != nil {
			c.logger.Warn("runtime.pull.parse_error", "Failed to parse progress line", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if progress.Error != "" {
			c.logger.Error("runtime.pull.failed", "Pull failed", map[string]interface{}{
				"model": modelID,
				"error": progress.Error,
			})
			return fmt.Errorf("pull failed: %s", progress.Error)
		}
		if progress.Status != "" {
			lastStatus = progress.Status
		}
	}

	if err := scanner.Err(); err != nil {
		c.logger.Error("runtime.pull.stream_error", "Pull stream error", map[string]interface{}{
			"model": modelID,
			"error": err.Error(),
		})
		return fmt.Errorf("pull stream error: %w", err)
	}

	c.logger.Info("runtime.pull.completed", "Model pull completed", map[string]interface{}{
		"model":  modelID,
		"status": lastStatus,
	})
	return nil
}

// Delete removes a model from the runtime.
func (c *Client) Delete(ctx context.Context, modelID string) error {
	c.logger.Info("runtime.delete.started", "Deleting model", map[string]interface{}{
		"model": modelID,
	})

	reqBody, err := json.Marshal(map[string]string{"name": modelID})
	if err != nil {
		return fmt.Errorf("failed to marshal delete request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint+"/api/delete", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("runtime API returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Info("runtime.delete.completed", "Model deleted", map[string]interface{}{
		"model": modelID,
	})
	return nil
}
