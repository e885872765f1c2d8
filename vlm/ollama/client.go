package ollama

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
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 120 * time.Second // Longer timeout for local models
	defaultModel   = "qwen2.5vl"

	// defaultMaxAnswerTokens bounds generation when the caller does
	// not. Classification answers fit well inside this.
	defaultMaxAnswerTokens = 128
)

// Client implements the VLM client interface for a locally hosted
// model served by Ollama.
type Client struct {
	options    vlm.ClientOptions
	httpClient *http.Client
}

// ollamaMessage represents a message in Ollama's format
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Images holds base64-encoded images for vision-capable models
	Images []string `json:"images,omitempty"`
}

// ollamaRequest represents a request to Ollama's API
type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ollamaResponse represents a response from Ollama's API
type ollamaResponse struct {
	Model           string        `json:"model"`
	CreatedAt       time.Time     `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// NewClient creates a new Ollama client
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

	// Check for custom base URL from environment
	if options.BaseURL == defaultBaseURL {
		if envURL := os.Getenv("OLLAMA_URL"); envURL != "" {
			options.BaseURL = envURL
		}
	}

	// Create HTTP client
	httpClient := &http.Client{
		Timeout: options.Timeout,
	}

	client := &Client{
		options:    options,
		httpClient: httpClient,
	}

	// Check connection
	if err := client.checkConnection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama at %s: %w", options.BaseURL, err)
	}

	return client, nil
}

// checkConnection verifies the Ollama server is running
func (c *Client) checkConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.options.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil
}

// Chat sends a chat request to Ollama
func (c *Client) Chat(ctx context.Context, request *vlm.ChatRequest) (*vlm.ChatResponse, error) {
	// Convert to Ollama format
	ollamaReq := c.convertRequest(request)

	resp, err := c.send(ctx, ollamaReq)
	if err != nil {
		return nil, err
	}

	// Convert to standard format
	return c.convertResponse(resp, ollamaReq.Model), nil
}

// ChatWithImage sends one prompt with one image using Ollama's
// /api/chat. Ollama takes raw base64 in the images array rather than
// data URLs.
func (c *Client) ChatWithImage(ctx context.Context, prompt string, img *vision.Image, opts *vlm.VisionOptions) (string, error) {
	req := &ollamaRequest{
		Model:   c.options.DefaultModel,
		Stream:  false,
		Options: map[string]interface{}{"num_predict": defaultMaxAnswerTokens},
	}

	if opts != nil {
		if opts.System != "" {
			req.Messages = append(req.Messages, ollamaMessage{
				Role:    "system",
				Content: opts.System,
			})
		}
		if opts.Temperature > 0 {
			req.Options["temperature"] = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			req.Options["num_predict"] = opts.MaxTokens
		}
	}
	req.Messages = append(req.Messages, ollamaMessage{
		Role:    "user",
		Content: prompt,
		Images:  []string{img.Base64()},
	})

	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// send posts a request to /api/chat and decodes the reply.
func (c *Client) send(ctx context.Context, ollamaReq *ollamaRequest) (*ollamaResponse, error) {
	// Create request body
	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if os.Getenv("SCENETAG_DEBUG") == "true" {
		fmt.Fprintf(os.Stderr, "\n[Ollama] Request URL: %s/api/chat model=%s\n", c.options.BaseURL, ollamaReq.Model)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, "POST", c.options.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	// Execute request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	// Read response body
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Check for errors
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	// Parse Ollama response
	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &ollamaResp, nil
}

// ListModels returns available models in Ollama
func (c *Client) ListModels(ctx context.Context) ([]vlm.Model, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.options.BaseURL+"/api/tags", nil)
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
		return nil, fmt.Errorf("Ollama error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Models []struct {
			Name       string    `json:"name"`
			ModifiedAt time.Time `json:"modified_at"`
			Size       int64     `json:"size"`
			Digest     string    `json:"digest"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Convert to standard model format
	models := make([]vlm.Model, len(response.Models))
	for i, model := range response.Models {
		supportsVision := isOllamaVisionModel(model.Name)
		desc := fmt.Sprintf("Local model (%s)", formatBytes(model.Size))
		if supportsVision {
			desc = desc + " · Vision"
		}
		models[i] = vlm.Model{
			ID:             model.Name,
			Object:         "model",
			Created:        model.ModifiedAt.Unix(),
			OwnedBy:        "ollama",
			Description:    desc,
			SupportsVision: supportsVision,
		}
	}

	return models, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	return nil
}

// setHeaders sets common headers for requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "scenetag/1.0")

	// Ollama doesn't require authentication
	// But add custom headers if provided
	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}
}

// convertRequest converts from standard format to Ollama format.
// Multimodal data-URL parts become Ollama's images array.
func (c *Client) convertRequest(req *vlm.ChatRequest) *ollamaRequest {
	ollamaReq := &ollamaRequest{
		Model:   req.Model,
		Options: make(map[string]interface{}),
	}

	if ollamaReq.Model == "" {
		ollamaReq.Model = c.options.DefaultModel
	}

	// Convert messages
	for _, msg := range req.Messages {
		ollamaMsg := ollamaMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for _, part := range msg.Parts {
			switch part.Type {
			case "text":
				ollamaMsg.Content += part.Text
			case "image_url":
				if part.ImageURL != nil {
					ollamaMsg.Images = append(ollamaMsg.Images, stripDataURL(part.ImageURL.URL))
				}
			}
		}
		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMsg)
	}

	// Convert parameters to Ollama options
	if req.Temperature > 0 {
		ollamaReq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		ollamaReq.Options["num_predict"] = req.MaxTokens
	}
	if req.TopP > 0 {
		ollamaReq.Options["top_p"] = req.TopP
	}

	return ollamaReq
}

// convertResponse converts from Ollama format to standard format
func (c *Client) convertResponse(resp *ollamaResponse, model string) *vlm.ChatResponse {
	return &vlm.ChatResponse{
		ID:      fmt.Sprintf("ollama-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: resp.CreatedAt.Unix(),
		Model:   model,
		Choices: []vlm.Choice{
			{
				Index: 0,
				Message: vlm.Message{
					Role:    vlm.RoleAssistant,
					Content: resp.Message.Content,
				},
				FinishReason: "stop",
			},
		},
		Usage: &vlm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}
}

// stripDataURL extracts the base64 payload from a data URL; plain
// base64 passes through.
func stripDataURL(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "data:image/") {
		if idx := strings.Index(s, ","); idx != -1 && idx+1 < len(s) {
			return s[idx+1:]
		}
	}
	return s
}

// formatBytes formats bytes to human readable string
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// isOllamaVisionModel returns true if the given model name is likely vision-capable
func isOllamaVisionModel(name string) bool {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "llava"),
		strings.Contains(n, "bakllava"),
		strings.Contains(n, "moondream"),
		strings.Contains(n, "qwen2.5vl"),
		strings.Contains(n, "minicpm-v"),
		strings.Contains(n, ":vision"),
		strings.Contains(n, "-vision"):
		return true
	default:
		return false
	}
}
