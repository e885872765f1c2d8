// Package classify ties the pieces together: load a frame, send it
// with the instruction prompt to a vision backend, parse the strict
// JSON answer.
package classify

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/scenetag/scenetag/prompt"
	"github.com/scenetag/scenetag/scene"
	"github.com/scenetag/scenetag/vision"
	"github.com/scenetag/scenetag/vlm"
)

// Classifier runs driving-scene classification against one backend.
type Classifier struct {
	client vlm.VisionClient
	prompt string
	system string
	opts   vlm.VisionOptions
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPrompt overrides the embedded instruction prompt.
func WithPrompt(p string) Option {
	return func(c *Classifier) {
		c.prompt = p
	}
}

// WithSystem overrides the system persona message.
func WithSystem(s string) Option {
	return func(c *Classifier) {
		c.system = s
	}
}

// WithTemperature sets the sampling temperature for every request.
func WithTemperature(t float32) Option {
	return func(c *Classifier) {
		c.opts.Temperature = t
	}
}

// WithMaxTokens bounds the generated answer.
func WithMaxTokens(n int) Option {
	return func(c *Classifier) {
		c.opts.MaxTokens = n
	}
}

// New creates a Classifier on top of a vision-capable backend client.
func New(client vlm.VisionClient, opts ...Option) *Classifier {
	c := &Classifier{
		client: client,
		prompt: prompt.Default(),
		system: prompt.System(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify sends one dashcam frame to the backend and returns the
// validated classification. The image file is checked before any
// network traffic happens.
func (c *Classifier) Classify(ctx context.Context, imagePath string) (*scene.Result, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("image file %s: %w", imagePath, err)
	}

	img, err := vision.LoadImage(imagePath)
	if err != nil {
		return nil, err
	}

	visionOpts := c.opts
	visionOpts.System = c.system

	raw, err := c.client.ChatWithImage(ctx, c.prompt, img, &visionOpts)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return scene.Parse(raw)
}

// BatchItem is the outcome for one image in a batch run.
type BatchItem struct {
	Path   string
	Result *scene.Result
	Err    error
}

// ClassifyBatch classifies several frames with at most workers
// in-flight requests. Results come back in input order; a failed image
// records its error without aborting the rest.
func (c *Classifier) ClassifyBatch(ctx context.Context, paths []string, workers int) []BatchItem {
	if workers < 1 {
		workers = 1
	}

	items := make([]BatchItem, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			result, err := c.Classify(gctx, path)
			items[i] = BatchItem{Path: path, Result: result, Err: err}
			// Errors are per-item; never cancel the group.
			return nil
		})
	}

	// Workers only ever return nil.
	_ = g.Wait()

	return items
}
