package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func record(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	m := make(map[string]any)
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid log record %q: %v", buf.String(), err)
	}
	return m
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(&buf, Warn)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record should be filtered at warn level")
	}
	l.Error("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("error record missing")
	}
}

func TestWithFieldsCarryOver(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(&buf, Info).With(map[string]string{"component": "test"})
	l.Info("msg")
	m := record(t, &buf)
	if m["component"] != "test" {
		t.Fatalf("expected component field, got %v", m)
	}
}

func TestSecretKeyValuesAreMasked(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(&buf, Info)
	l.Info("auth", "api_key", "sk-abcdefghijklmnop")
	m := record(t, &buf)
	v := m["api_key"].(string)
	if strings.Contains(v, "abcdefghijklm") {
		t.Fatalf("secret leaked: %q", v)
	}
	if !strings.Contains(v, "***") {
		t.Fatalf("expected redaction marker, got %q", v)
	}
}

func TestBearerValuesAreMasked(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(&buf, Info)
	l.Info("req", "header", "Bearer supersecrettoken123")
	m := record(t, &buf)
	v := m["header"].(string)
	if strings.Contains(v, "supersecrettoken") {
		t.Fatalf("token leaked: %q", v)
	}
}
