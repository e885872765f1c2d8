// Package prompt holds the fixed driving-scene instruction sent to
// every backend, plus the optional file override.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed driving_scene_analysis.txt
var defaultPrompt string

// systemPersona pins the model to the annotator role so answers stay
// in the strict JSON schema.
const systemPersona = "You are a driving-scene annotation expert. Output results strictly in the requested JSON format."

// Default returns the embedded driving-scene instruction.
func Default() string {
	return strings.TrimSpace(defaultPrompt)
}

// Load reads an instruction prompt from a file. A missing or empty
// file is an error; callers that want the built-in instruction use
// Default instead.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load prompt file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	return text, nil
}

// System returns the annotator-persona system message.
func System() string {
	return systemPersona
}
