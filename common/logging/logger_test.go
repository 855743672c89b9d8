package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/sentrygate/sentrygate/common/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		l := New(slog.LevelInfo, format)
		if l == nil || l.Logger == nil {
			t.Fatalf("New returned nil logger for format %q", format)
		}
	}
}

func TestWithContext(t *testing.T) {
	l := New(slog.LevelInfo, "json")

	t.Run("without request id", func(t *testing.T) {
		got := l.WithContext(context.Background())
		if got == nil {
			t.Fatal("WithContext returned nil")
		}
	})

	t.Run("with request id", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
		got := l.WithContext(ctx)
		if got == nil {
			t.Fatal("WithContext returned nil")
		}
		// The derived logger must not be the bare underlying logger since
		// it carries the request_id attribute.
		if got == l.Logger {
			t.Error("expected a derived logger carrying request_id")
		}
	})
}
