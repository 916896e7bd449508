package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextHandlerInjectsRequestMeta(t *testing.T) {
	var buf bytes.Buffer
	h := newContextHandler(slog.NewJSONHandler(&buf, nil))
	log := slog.New(h)

	ctx := WithRID(context.Background(), BuildRID(10, -100, 42))
	ctx = WithUpdateMeta(ctx, 10, 42, -100)
	ctx = WithHandler(ctx, "subscribe")

	log.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec["rid"] != CompactRID("10:-100:42") {
		t.Errorf("rid = %v, want compact form", rec["rid"])
	}
	if rec["user_id"] != float64(42) {
		t.Errorf("user_id = %v, want 42", rec["user_id"])
	}
	if rec["chat_id"] != float64(-100) {
		t.Errorf("chat_id = %v, want -100", rec["chat_id"])
	}
	if rec["handler"] != "subscribe" {
		t.Errorf("handler = %v, want subscribe", rec["handler"])
	}
}

func TestContextHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newContextHandler(slog.NewJSONHandler(&buf, nil)))

	log.InfoContext(context.Background(), "bare")

	out := buf.String()
	for _, key := range []string{"rid", "user_id", "chat_id", "handler"} {
		if strings.Contains(out, `"`+key+`"`) {
			t.Errorf("record contains %q without context meta: %s", key, out)
		}
	}
}

func TestCompactRID(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "35:36:37", "z.10.11"},
		{"not rid", "hello", "hello"},
		{"two parts", "1:2", "1:2"},
		{"non numeric part", "1:a:3", "1:a:3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CompactRID(tc.in); got != tc.want {
				t.Errorf("CompactRID(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeLimit(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"zero limit", "abc", 0, ""},
		{"control stripped", "a\x00b\x7fc", 10, "abc"},
		{"tab kept", "a\tb", 10, "a\tb"},
		{"truncated", "hello", 3, "hel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeLimit(tc.in, tc.max); got != tc.want {
				t.Errorf("SanitizeLimit(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

func TestSummarizeStrings(t *testing.T) {
	got, truncated := SummarizeStrings([]string{"a", "b", "c"}, 2)
	if got != "a, b" || !truncated {
		t.Errorf("SummarizeStrings = (%q, %v), want (\"a, b\", true)", got, truncated)
	}
	got, truncated = SummarizeStrings([]string{"a"}, 2)
	if got != "a" || truncated {
		t.Errorf("SummarizeStrings = (%q, %v), want (\"a\", false)", got, truncated)
	}
}
