package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/formulab/desbank/internal/config"
)

func TestNewSyncAndAsync(t *testing.T) {
	for _, async := range []bool{false, true} {
		cfg := config.Logging{Level: "debug", Service: "desbank-test", Async: async}
		l, closer := New(cfg)
		if l == nil {
			t.Fatalf("New(async=%v) returned nil logger", async)
		}
		l.Debug("probe")
		closer.Close()
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"VERBOSE": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Fatalf("RequestID on bare context = %q, want empty", got)
	}
	ctx = WithRequestID(ctx, "sub-42")
	if got := RequestID(ctx); got != "sub-42" {
		t.Fatalf("RequestID = %q, want sub-42", got)
	}
}
