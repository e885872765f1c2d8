package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scenetag/scenetag/vlm"
	"github.com/scenetag/scenetag/vision"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
	defaultModel   = "gpt-4o"
)

// Client implements the VLM client interface for OpenAI and any
// OpenAI-compatible server reachable through WithBaseURL.
type Client struct {
	options    vlm.ClientOptions
	httpClient *http.Client
}

// NewClient creates a new OpenAI client
func NewClient(opts ...vlm.ClientOption) (*Client, error) {
	options := vlm.ClientOptions{
		BaseURL:      defaultBaseURL,
		Timeout:      defaultTimeout,
		MaxRetries:   3,
		DefaultModel: defaultModel,
		Headers:      make(map[string]string),
	}

	// Apply options
	for _, opt := range opts {
		opt(&options)
	}

	// Get API key from environment if not provided
	if options.APIKey == "" {
		options.APIKey = os.Getenv("OPENAI_API_KEY")
		if options.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key not provided")
		}
	}

	// Create HTTP client
	httpClient := &http.Client{
		Timeout: options.Timeout,
	}

	return &Client{
		options:    options,
		httpClient: httpClient,
	}, nil
}

// Chat sends a chat request to OpenAI
func (c *Client) Chat(ctx context.Context, request *vlm.ChatRequest) (*vlm.ChatResponse, error) {
	// Set default model if not specified
	if request.Model == "" {
		request.Model = c.options.DefaultModel
	}

	// Create request body
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Debug logging
	if os.Getenv("SCENETAG_DEBUG") == "true" {
		fmt.Fprintf(os.Stderr, "\n[OpenAI] Request URL: %s/chat/completions\n", c.options.BaseURL)
		fmt.Fprintf(os.Stderr, "[OpenAI] Request Body:\n%s\n", string(body))
	}

	// Execute request with retries; the body reader is rebuilt per
	// attempt so retries do not send an already-drained body.
	var response *vlm.ChatResponse
	err = c.doWithRetries(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", c.options.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// Read response body
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		// Check for errors
		if resp.StatusCode != http.StatusOK {
			var errResp struct {
				Error vlm.ErrorResponse `json:"error"`
			}
			if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
				return fmt.Errorf("OpenAI API error: %s (status %d)", errResp.Error.Message, resp.StatusCode)
			}
			return fmt.Errorf("OpenAI API error: status %d, body: %s", resp.StatusCode, string(respBody))
		}

		// Parse response
		response = &vlm.ChatResponse{}
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		return nil
	})

	return response, err
}

// ChatWithImage sends one prompt with one image and returns the raw
// model text.
func (c *Client) ChatWithImage(ctx context.Context, prompt string, img *vision.Image, opts *vlm.VisionOptions) (string, error) {
	request := &vlm.ChatRequest{
		Model: c.options.DefaultModel,
	}

	if opts != nil && opts.System != "" {
		request.Messages = append(request.Messages, vlm.Message{
			Role:    vlm.RoleSystem,
			Content: opts.System,
		})
	}
	request.Messages = append(request.Messages, vlm.Message{
		Role: vlm.RoleUser,
		Parts: []vlm.ContentPart{
			vlm.ImagePart(img.DataURL()),
			vlm.TextPart(prompt),
		},
	})

	if opts != nil {
		request.Temperature = opts.Temperature
		request.MaxTokens = opts.MaxTokens
	}

	resp, err := c.Chat(ctx, request)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels returns available OpenAI models
func (c *Client) ListModels(ctx context.Context) ([]vlm.Model, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.options.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OpenAI API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Data []vlm.Model `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	for i := range response.Data {
		response.Data[i].SupportsVision = isVisionModel(response.Data[i].ID)
	}

	return response.Data, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	// Nothing to clean up for HTTP client
	return nil
}

// setHeaders sets common headers for requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	req.Header.Set("User-Agent", "scenetag/1.0")

	// Add custom headers
	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}
}

// doWithRetries executes a function with retries
func (c *Client) doWithRetries(ctx context.Context, fn func() error) error {
	var lastErr error

	for i := 0; i <= c.options.MaxRetries; i++ {
		if i > 0 {
			// Exponential backoff
			delay := time.Duration(i) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			// Check if error is retryable
			if strings.Contains(err.Error(), "status 429") || // Rate limit
				strings.Contains(err.Error(), "status 500") || // Server error
				strings.Contains(err.Error(), "status 502") || // Bad gateway
				strings.Contains(err.Error(), "status 503") { // Service unavailable
				continue
			}
			return err
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isVisionModel returns true if the given model name is likely
// vision-capable.
func isVisionModel(name string) bool {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "gpt-4o"),
		strings.Contains(n, "gpt-4.1"),
		strings.Contains(n, "vision"),
		strings.Contains(n, "omni"):
		return true
	default:
		return false
	}
}
