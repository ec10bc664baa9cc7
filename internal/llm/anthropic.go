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

const anthropicURL = "https://api.anthropic.com/v1"

// Anthropic calls the Messages API at temperature 0.
type Anthropic struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropic(apiKey, model, baseURL string, client *http.Client) *Anthropic {
	if baseURL == "" { baseURL = anthropicURL }
	return &Anthropic{apiKey: apiKey, model: model, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type msgRequest struct {
	Model       string       `json:"model"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
	Messages    []msgMessage `json:"messages"`
}

type msgMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type msgResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(msgRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages:  []msgMessage{{Role: "user", Content: prompt}},
	})
	if err != nil { return "", err }
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil { return "", err }
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil { return "", fmt.Errorf("anthropic request: %w", err) }
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil { return "", fmt.Errorf("anthropic read: %w", err) }
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	var out msgResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("%w: no content blocks", ErrMalformedResponse)
	}
	return strings.TrimSpace(out.Content[0].Text), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n { return s }
	return string(r[:n])
}
