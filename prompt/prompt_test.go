package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_ContainsSchema(t *testing.T) {
	p := Default()
	if p == "" {
		t.Fatal("default prompt is empty")
	}

	// Every taxonomy key the parser validates must be named in the
	// instruction.
	keys := []string{
		"junction", "straight_road", "ramp_entrance", "ramp_exit", "curve",
		"nearby_vehicle", "pedestrian", "cyclist", "construction",
		"traffic_element", "weather_condition", "road_hazard",
		"emergency_vehicle", "animal", "special_vehicle",
		"conflicting_vehicle", "door_opening_vehicle",
	}
	for _, key := range keys {
		if !strings.Contains(p, key) {
			t.Fatalf("default prompt missing key %s", key)
		}
	}

	if !strings.Contains(p, "strict JSON") {
		t.Fatal("default prompt must demand strict JSON output")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "prompt.txt")); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("  \n\t"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty prompt file")
	}
}

func TestLoad_TrimsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("\n  classify things  \n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p != "classify things" {
		t.Fatalf("expected trimmed content, got %q", p)
	}
}

func TestSystem(t *testing.T) {
	if !strings.Contains(System(), "annotation expert") {
		t.Fatalf("unexpected system persona: %s", System())
	}
}
