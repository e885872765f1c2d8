package dashscope

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/scenetag/scenetag/vlm"
	"github.com/scenetag/scenetag/vision"
)

func testImage() *vision.Image {
	return &vision.Image{Data: []byte("jpeg-bytes"), MIME: "image/jpeg"}
}

func chatCompletion(content string) string {
	resp := map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"model":   "qwen-vl-max-latest",
		"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("QWEN_API_KEY", "")
	t.Setenv("DASHSCOPE_API_KEY", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestNewClient_EnvFallback(t *testing.T) {
	t.Setenv("QWEN_API_KEY", "")
	t.Setenv("DASHSCOPE_API_KEY", "env-key")

	client, err := NewClient()
	if err != nil {
		t.Fatalf("expected DASHSCOPE_API_KEY fallback, got %v", err)
	}
	defer client.Close()
}

func TestChatWithImage_WireFormat(t *testing.T) {
	var captured map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletion(`{"scenarios":{}}`)))
	}))
	defer server.Close()

	client, err := NewClient(
		vlm.WithAPIKey("test-key"),
		vlm.WithBaseURL(server.URL),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	text, err := client.ChatWithImage(context.Background(), "classify the scene", testImage(), &vlm.VisionOptions{
		System: "you are an annotator",
	})
	if err != nil {
		t.Fatalf("chat with image: %v", err)
	}
	if text != `{"scenarios":{}}` {
		t.Fatalf("unexpected response text: %s", text)
	}

	if captured["model"] != "qwen-vl-max-latest" {
		t.Fatalf("expected default model, got %v", captured["model"])
	}

	messages := captured["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(messages))
	}

	system := messages[0].(map[string]interface{})
	if system["role"] != "system" || system["content"] != "you are an annotator" {
		t.Fatalf("unexpected system message: %v", system)
	}

	user := messages[1].(map[string]interface{})
	parts := user["content"].([]interface{})
	if len(parts) != 2 {
		t.Fatalf("expected image + text parts, got %d", len(parts))
	}

	imagePart := parts[0].(map[string]interface{})
	if imagePart["type"] != "image_url" {
		t.Fatalf("expected image part first, got %v", imagePart["type"])
	}
	url := imagePart["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("expected base64 data URL, got %.40s", url)
	}

	textPart := parts[1].(map[string]interface{})
	if textPart["type"] != "text" || textPart["text"] != "classify the scene" {
		t.Fatalf("unexpected text part: %v", textPart)
	}
}

func TestChat_RetriesOnRateLimit(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		w.Write([]byte(chatCompletion("ok")))
	}))
	defer server.Close()

	client, err := NewClient(
		vlm.WithAPIKey("test-key"),
		vlm.WithBaseURL(server.URL),
		vlm.WithMaxRetries(1),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	resp, err := client.Chat(context.Background(), &vlm.ChatRequest{
		Messages: []vlm.Message{{Role: vlm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if resp.Text() != "ok" {
		t.Fatalf("unexpected text %q", resp.Text())
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestChat_SurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"image too large","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client, err := NewClient(
		vlm.WithAPIKey("test-key"),
		vlm.WithBaseURL(server.URL),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	_, err = client.Chat(context.Background(), &vlm.ChatRequest{
		Messages: []vlm.Message{{Role: vlm.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected API error")
	}
	if !strings.Contains(err.Error(), "image too large") {
		t.Fatalf("expected API message in error, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"qwen-vl-max-latest","object":"model"},{"id":"qwen-turbo","object":"model"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(
		vlm.WithAPIKey("test-key"),
		vlm.WithBaseURL(server.URL),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if !models[0].SupportsVision {
		t.Fatalf("expected %s to be flagged as vision-capable", models[0].ID)
	}
	if models[1].SupportsVision {
		t.Fatalf("did not expect %s to be vision-capable", models[1].ID)
	}
}
