package artifact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newChatServer fakes an OpenAI-compatible chat completions endpoint.
func newChatServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *ChatGenerator) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gen, err := NewChatGenerator(ChatConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	if err != nil {
		t.Fatalf("NewChatGenerator() error = %v", err)
	}
	return srv, gen
}

func TestChatGeneratorGenerate(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq chatRequest

	_, gen := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "- hosts: all\n  tasks: []\n"}},
			},
		})
	})

	out, err := gen.Generate(context.Background(), KindPlaybook, "install nginx")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "- hosts: all\n  tasks: []\n" {
		t.Errorf("Generate() = %q", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("request messages = %+v, want system then user", gotReq.Messages)
	}
}

func TestChatGeneratorAPIError(t *testing.T) {
	_, gen := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "rate limited"},
		})
	})

	if _, err := gen.Generate(context.Background(), KindPlaybook, "x"); err == nil {
		t.Error("Generate() succeeded on an API error response")
	}
}

func TestChatGeneratorNoChoices(t *testing.T) {
	_, gen := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	if _, err := gen.Generate(context.Background(), KindPlaybook, "x"); err == nil {
		t.Error("Generate() succeeded with no choices")
	}
}

func TestChatGeneratorConfigValidation(t *testing.T) {
	if _, err := NewChatGenerator(ChatConfig{Model: "m"}); err == nil {
		t.Error("NewChatGenerator() accepted a missing base URL")
	}
	if _, err := NewChatGenerator(ChatConfig{BaseURL: "http://localhost"}); err == nil {
		t.Error("NewChatGenerator() accepted a missing model")
	}
}

func TestChatGeneratorRejectsInvalidKind(t *testing.T) {
	_, gen := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server for an invalid kind")
	})

	if _, err := gen.Generate(context.Background(), Kind("bogus"), "x"); err == nil {
		t.Error("Generate() accepted an invalid artifact kind")
	}
}
