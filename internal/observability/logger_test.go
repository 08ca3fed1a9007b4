package observability

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLogger_DevEnvUsesDebugLevel(t *testing.T) {
	logger := NewLogger("dev")
	if logger == nil {
		t.Fatalf("expected a non-nil logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("expected dev env logger to be enabled at debug level")
	}
}

func TestNewLogger_NonDevEnvUsesInfoLevel(t *testing.T) {
	logger := NewLogger("prod")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("expected prod env logger to not log debug level")
	}
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("expected prod env logger to log info level")
	}
}
