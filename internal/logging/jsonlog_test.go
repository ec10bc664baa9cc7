package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestInfoWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("info")
	Info("stage_done", map[string]any{"stage": "diff", "count": 3})
	Debug("hidden", nil)
	var e map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &e); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if e["msg"] != "stage_done" || e["stage"] != "diff" || e["level"] != "info" {
		t.Fatalf("unexpected entry %v", e)
	}
}
