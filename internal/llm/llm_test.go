package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"threadpromo/internal/config"
)

func TestAnthropicComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" { t.Errorf("path = %s", r.URL.Path) }
		if r.Header.Get("x-api-key") != "k" { t.Errorf("missing api key header") }
		var req msgRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens != 80 || len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  リスク：低\n理由なし  "}]}`))
	}))
	defer ts.Close()
	a := NewAnthropic("k", "m", ts.URL, ts.Client())
	got, err := a.Complete(context.Background(), "hello", 80)
	if err != nil { t.Fatal(err) }
	if got != "リスク：低\n理由なし" { t.Fatalf("got %q", got) }
}

func TestAnthropicErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"status", http.StatusTooManyRequests, `{"error":"slow down"}`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
		}},
		{"no content", http.StatusOK, `{"content":[]}`, func(err error) bool { return errors.Is(err, ErrMalformedResponse) }},
		{"not json", http.StatusOK, `<html>`, func(err error) bool { return errors.Is(err, ErrMalformedResponse) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				_, _ = w.Write([]byte(c.body))
			}))
			defer ts.Close()
			_, err := NewAnthropic("k", "m", ts.URL, ts.Client()).Complete(context.Background(), "p", 10)
			if err == nil || !c.check(err) { t.Fatalf("unexpected error %v", err) }
		})
	}
}

func TestAnthropicTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()
	client := &http.Client{Timeout: 20 * time.Millisecond}
	if _, err := NewAnthropic("k", "m", ts.URL, client).Complete(context.Background(), "p", 10); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestParseOpenAIResponseShapes(t *testing.T) {
	for _, body := range []string{
		`{"output_text":"渋谷の新築"}`,
		`{"output":[{"type":"message","content":[{"type":"output_text","text":"渋谷の新築"}]}]}`,
		`{"choices":[{"message":{"content":"渋谷の新築"}}]}`,
	} {
		got, err := parseOpenAIResponse([]byte(body))
		if err != nil || got != "渋谷の新築" { t.Fatalf("%s: got %q %v", body, got, err) }
	}
	if _, err := parseOpenAIResponse([]byte(`{"id":"x"}`)); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestNewProviders(t *testing.T) {
	if _, err := New(config.LLMConfig{Provider: "anthropic"}); err == nil { t.Fatal("missing key should fail") }
	if _, err := New(config.LLMConfig{Provider: "nope", APIKey: "k"}); err == nil { t.Fatal("unknown provider should fail") }
	o, err := New(config.LLMConfig{Provider: "openai", APIKey: "k"})
	if err != nil { t.Fatal(err) }
	if _, ok := o.(*OpenAI); !ok { t.Fatalf("expected *OpenAI, got %T", o) }
}
