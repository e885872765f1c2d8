package classify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/scenetag/scenetag/scene"
	"github.com/scenetag/scenetag/vision"
	"github.com/scenetag/scenetag/vlm"
)

const fakeAnswer = `{
  "scenarios": {"junction":"no","straight_road":"yes","ramp_entrance":"no","ramp_exit":"no","curve":"no"},
  "critical_objects": {"nearby_vehicle":"yes","pedestrian":"no","cyclist":"no","construction":"no","traffic_element":"no","weather_condition":"no","road_hazard":"no","emergency_vehicle":"no","animal":"no","special_vehicle":"no","conflicting_vehicle":"no","door_opening_vehicle":"no"}
}`

// fakeClient records prompts and answers with a canned response.
type fakeClient struct {
	mu       sync.Mutex
	prompts  []string
	systems  []string
	response string
	err      error
}

func (f *fakeClient) Chat(ctx context.Context, request *vlm.ChatRequest) (*vlm.ChatResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) ListModels(ctx context.Context) ([]vlm.Model, error) {
	return nil, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) ChatWithImage(ctx context.Context, prompt string, img *vision.Image, opts *vlm.VisionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if opts != nil {
		f.systems = append(f.systems, opts.System)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func writeFrame(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestClassify_HappyPath(t *testing.T) {
	client := &fakeClient{response: fakeAnswer}
	classifier := New(client)

	path := writeFrame(t, t.TempDir(), "frame.jpg")

	result, err := classifier.Classify(context.Background(), path)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Scenarios.StraightRoad != scene.FlagYes {
		t.Fatalf("expected straight_road=yes, got %s", result.Scenarios.StraightRoad)
	}
	if result.CriticalObjects.NearbyVehicle != scene.FlagYes {
		t.Fatalf("expected nearby_vehicle=yes, got %s", result.CriticalObjects.NearbyVehicle)
	}

	if len(client.prompts) != 1 {
		t.Fatalf("expected one inference call, got %d", len(client.prompts))
	}
	if !strings.Contains(client.prompts[0], "driving-scene annotation expert") {
		t.Fatalf("expected default instruction prompt, got %.60s", client.prompts[0])
	}
	if len(client.systems) != 1 || client.systems[0] == "" {
		t.Fatalf("expected annotator system message, got %v", client.systems)
	}
}

func TestClassify_PromptOverride(t *testing.T) {
	client := &fakeClient{response: fakeAnswer}
	classifier := New(client, WithPrompt("custom instruction"))

	path := writeFrame(t, t.TempDir(), "frame.jpg")
	if _, err := classifier.Classify(context.Background(), path); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if client.prompts[0] != "custom instruction" {
		t.Fatalf("expected prompt override, got %q", client.prompts[0])
	}
}

func TestClassify_MissingImageSkipsNetwork(t *testing.T) {
	client := &fakeClient{response: fakeAnswer}
	classifier := New(client)

	_, err := classifier.Classify(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	if err == nil {
		t.Fatal("expected error for missing image")
	}
	// The underlying stat error must survive wrapping so callers can
	// tell a missing file from a permission problem.
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist in chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "nope.jpg") {
		t.Fatalf("expected path in error, got %v", err)
	}
	if len(client.prompts) != 0 {
		t.Fatal("no inference call should happen for a missing image")
	}
}

func TestClassify_ParseFailureCarriesRaw(t *testing.T) {
	client := &fakeClient{response: "the scene looks busy"}
	classifier := New(client)

	path := writeFrame(t, t.TempDir(), "frame.jpg")

	_, err := classifier.Classify(context.Background(), path)
	var parseErr *scene.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *scene.ParseError, got %v", err)
	}
	if parseErr.Raw != "the scene looks busy" {
		t.Fatalf("expected raw model text preserved, got %q", parseErr.Raw)
	}
}

func TestClassify_InferenceErrorWrapped(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	classifier := New(client)

	path := writeFrame(t, t.TempDir(), "frame.jpg")

	_, err := classifier.Classify(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "inference failed") {
		t.Fatalf("expected wrapped inference error, got %v", err)
	}
}

func TestClassifyBatch_OrderAndPartialFailure(t *testing.T) {
	dir := t.TempDir()
	good1 := writeFrame(t, dir, "a.jpg")
	good2 := writeFrame(t, dir, "b.jpg")
	missing := filepath.Join(dir, "missing.jpg")

	client := &fakeClient{response: fakeAnswer}
	classifier := New(client)

	paths := []string{good1, missing, good2}
	items := classifier.ClassifyBatch(context.Background(), paths, 2)

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Path != paths[i] {
			t.Fatalf("expected input order preserved, item %d is %s", i, item.Path)
		}
	}

	if items[0].Err != nil || items[2].Err != nil {
		t.Fatalf("expected good frames to succeed: %v %v", items[0].Err, items[2].Err)
	}
	if items[1].Err == nil {
		t.Fatal("expected missing frame to fail")
	}
	if items[0].Result == nil || items[2].Result == nil {
		t.Fatal("expected results for good frames")
	}
}

func TestClassifyBatch_WorkerFloor(t *testing.T) {
	client := &fakeClient{response: fakeAnswer}
	classifier := New(client)

	path := writeFrame(t, t.TempDir(), "frame.jpg")
	items := classifier.ClassifyBatch(context.Background(), []string{path}, 0)
	if len(items) != 1 || items[0].Err != nil {
		t.Fatalf("expected single success with clamped workers, got %+v", items)
	}
}

func TestClassifyBatch_ManyFrames(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 8; i++ {
		paths = append(paths, writeFrame(t, dir, fmt.Sprintf("frame%d.jpg", i)))
	}

	client := &fakeClient{response: fakeAnswer}
	classifier := New(client)

	items := classifier.ClassifyBatch(context.Background(), paths, 3)
	for _, item := range items {
		if item.Err != nil {
			t.Fatalf("unexpected error for %s: %v", item.Path, item.Err)
		}
	}
	if len(client.prompts) != len(paths) {
		t.Fatalf("expected %d inference calls, got %d", len(paths), len(client.prompts))
	}
}
