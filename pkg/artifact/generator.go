package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Generator produces artifact text from a natural-language request. The
// pipeline treats the producer as an opaque upstream collaborator; anything
// that returns a document can stand behind this interface.
type Generator interface {
	// Generate returns raw (unsanitized) artifact text for the prompt.
	Generate(ctx context.Context, kind Kind, prompt string) (string, error)
}

// ChatConfig configures the chat-completion backed generator.
type ChatConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token. Optional for local endpoints.
	APIKey string

	// Model is the model identifier to request.
	Model string

	// Timeout bounds one generation request. Defaults to two minutes.
	Timeout time.Duration
}

// ChatGenerator produces artifacts through an OpenAI-compatible chat
// completions endpoint.
type ChatGenerator struct {
	config ChatConfig
	client *http.Client
}

// NewChatGenerator creates a generator against an OpenAI-compatible API.
func NewChatGenerator(cfg ChatConfig) (*ChatGenerator, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generator base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generator model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &ChatGenerator{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate requests a document of the given kind. The system prompt pins
// the model to emitting only the document, which Sanitize then enforces.
func (g *ChatGenerator) Generate(ctx context.Context, kind Kind, prompt string) (string, error) {
	if err := kind.Validate(); err != nil {
		return "", err
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: g.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(kind)},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation request: %w", err)
	}

	url := strings.TrimRight(g.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read generation response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("generation API error (%d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("generation API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generation response contains no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func systemPrompt(kind Kind) string {
	switch kind {
	case KindManifest:
		return "You generate Kubernetes manifests. Respond with only the YAML document, no prose, no markdown fences."
	case KindTemplate:
		return "You generate infrastructure stack templates. Respond with only the JSON document, no prose, no markdown fences."
	default:
		return "You generate Ansible playbooks. Respond with only the YAML playbook as a top-level list of plays, no prose, no markdown fences."
	}
}
