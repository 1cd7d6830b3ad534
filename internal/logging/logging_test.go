package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithAttrsOverridesByKey(t *testing.T) {
	ctx := WithAttrs(context.Background(), slog.String("cache", "page"), slog.Int("n", 1))
	ctx = WithAttrs(ctx, slog.String("cache", "api"))

	attrs := Attrs(ctx)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attrs, got %v", attrs)
	}
	if attrs[0].Value.String() != "api" {
		t.Fatalf("expected cache=api, got %v", attrs[0])
	}
}

func TestLogUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))
	ctx = WithAttrs(ctx, slog.String("component", "test"))

	Warn(ctx, "remote set failed", slog.String("key", "k"))
	Debug(ctx, "debug line")

	out := buf.String()
	for _, want := range []string{"remote set failed", "component=test", "key=k", "debug line"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "error"))

	Info(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if ParseLevel("WARN") != slog.LevelWarn || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}
