package vlm

import (
	"context"

	"github.com/scenetag/scenetag/vision"
)

// Client defines the interface for vision-language model backends
type Client interface {
	// Chat sends a chat request and returns the response
	Chat(ctx context.Context, request *ChatRequest) (*ChatResponse, error)

	// ListModels returns available models
	ListModels(ctx context.Context) ([]Model, error)

	// Close cleans up any resources
	Close() error
}

// VisionClient is the single-turn image+text interface every backend
// in this module implements. The prompt and one image go out, the raw
// model text comes back.
type VisionClient interface {
	Client

	// ChatWithImage sends one prompt with one image and returns the
	// full text response. Implementations handle whatever encoding
	// their API requires (data URLs, raw base64 arrays, ...).
	ChatWithImage(ctx context.Context, prompt string, img *vision.Image, opts *VisionOptions) (string, error)
}

// VisionOptions carries the per-request knobs for ChatWithImage.
type VisionOptions struct {
	// System is an optional system message (annotator persona).
	System string

	// Temperature, when > 0, overrides the backend default.
	Temperature float32

	// MaxTokens bounds the generated answer. Classification answers
	// are short; backends apply a small default when this is 0.
	MaxTokens int
}

// Model represents an available model
type Model struct {
	ID             string `json:"id"`
	Object         string `json:"object"`
	Created        int64  `json:"created"`
	OwnedBy        string `json:"owned_by"`
	Description    string `json:"description,omitempty"`
	SupportsVision bool   `json:"-"`
}
