package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const openaiURL = "https://api.openai.com/v1"

// OpenAI calls the Responses API.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAI(apiKey, model, baseURL string, client *http.Client) *OpenAI {
	if baseURL == "" { baseURL = openaiURL }
	return &OpenAI{apiKey: apiKey, model: model, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type oaMessage struct {
	Role    string    `json:"role"`
	Content []oaBlock `json:"content"`
}

type oaBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type oaRequest struct {
	Model           string      `json:"model"`
	Input           []oaMessage `json:"input"`
	MaxOutputTokens int         `json:"max_output_tokens,omitempty"`
	Temperature     float64     `json:"temperature"`
}

func (o *OpenAI) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(oaRequest{
		Model:           o.model,
		Input:           []oaMessage{{Role: "user", Content: []oaBlock{{Type: "input_text", Text: prompt}}}},
		MaxOutputTokens: maxTokens,
	})
	if err != nil { return "", err }
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/responses", bytes.NewReader(body))
	if err != nil { return "", err }
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil { return "", fmt.Errorf("openai request: %w", err) }
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil { return "", fmt.Errorf("openai read: %w", err) }
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	text, err := parseOpenAIResponse(raw)
	if err != nil { return "", err }
	return strings.TrimSpace(text), nil
}

// parseOpenAIResponse extracts text from either the Responses or Chat Completions shape.
func parseOpenAIResponse(b []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out, ok := raw["output_text"].(string); ok {
		return out, nil
	}
	// Responses API: output[].content[].text
	if output, ok := raw["output"].([]any); ok {
		for _, item := range output {
			m, _ := item.(map[string]any)
			content, _ := m["content"].([]any)
			for _, c := range content {
				if blk, ok := c.(map[string]any); ok {
					if t, ok := blk["text"].(string); ok { return t, nil }
				}
			}
		}
	}
	// fallback: choices[0].message.content
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if ch, ok := choices[0].(map[string]any); ok {
			if msg, ok := ch["message"].(map[string]any); ok {
				if t, ok := msg["content"].(string); ok { return t, nil }
			}
		}
	}
	return "", fmt.Errorf("%w: no text field", ErrMalformedResponse)
}
