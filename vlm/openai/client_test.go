package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/scenetag/scenetag/vlm"
	"github.com/scenetag/scenetag/vision"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestChatWithImage_DefaultsAndWireFormat(t *testing.T) {
	var captured map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"{}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(
		vlm.WithAPIKey("sk-test"),
		vlm.WithBaseURL(server.URL),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	img := &vision.Image{Data: []byte("jpeg"), MIME: "image/jpeg"}
	text, err := client.ChatWithImage(context.Background(), "classify", img, nil)
	if err != nil {
		t.Fatalf("chat with image: %v", err)
	}
	if text != "{}" {
		t.Fatalf("unexpected text %q", text)
	}

	if captured["model"] != defaultModel {
		t.Fatalf("expected default model %s, got %v", defaultModel, captured["model"])
	}

	messages := captured["messages"].([]interface{})
	if len(messages) != 1 {
		t.Fatalf("expected single user message without system opt, got %d", len(messages))
	}
	parts := messages[0].(map[string]interface{})["content"].([]interface{})
	if len(parts) != 2 {
		t.Fatalf("expected image + text parts, got %d", len(parts))
	}
	url := parts[0].(map[string]interface{})["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("expected data URL, got %.40s", url)
	}
}

func TestIsVisionModel(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"gpt-4o", true},
		{"gpt-4o-mini", true},
		{"gpt-4.1", true},
		{"gpt-4-vision-preview", true},
		{"gpt-3.5-turbo", false},
		{"text-embedding-3-small", false},
	}

	for _, tt := range tests {
		if got := isVisionModel(tt.name); got != tt.want {
			t.Fatalf("isVisionModel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
