package ollama

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

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
)

const retryDelay = time.Second

// Client calls a local Ollama generate endpoint.
type Client struct {
	BaseURL     string
	Model       string
	Temperature float64
	// MaxRetries is the number of additional attempts after a transport
	// failure. Zero means a single attempt.
	MaxRetries int

	HTTPClient *http.Client
}

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Temperature float64 `json:"temperature"`
	Format      string  `json:"format,omitempty"`
	Stream      bool    `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate sends a completion request and returns the raw response text.
// Responses are requested in JSON format. Transport failures are retried up
// to MaxRetries times and surface as internalerr.ErrTransport.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	if c.BaseURL == "" || c.Model == "" {
		return "", fmt.Errorf("ollama: base URL and model required")
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		text, err := c.generate(ctx, system, prompt)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, internalerr.ErrTransport) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:       c.Model,
		Prompt:      prompt,
		System:      system,
		Temperature: c.Temperature,
		Format:      "json",
		Stream:      false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/generate"), bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: %w: %v", internalerr.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: %w: %v", internalerr.ErrTransport, err)
	}

	var payload generateResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("ollama: %w: status %d", internalerr.ErrTransport, resp.StatusCode)
		}
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if payload.Error != "" {
			return "", fmt.Errorf("ollama: %w: %s", internalerr.ErrTransport, payload.Error)
		}
		return "", fmt.Errorf("ollama: %w: status %d", internalerr.ErrTransport, resp.StatusCode)
	}
	if payload.Response == "" {
		return "", fmt.Errorf("ollama: %w: empty response", internalerr.ErrTransport)
	}
	return payload.Response, nil
}

// Ping checks that the service answers and the model list is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.BaseURL == "" {
		return fmt.Errorf("ollama: base URL required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/tags"), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %w: %v", internalerr.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: %w: status %d", internalerr.ErrTransport, resp.StatusCode)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + path
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 120 * time.Second}
}
