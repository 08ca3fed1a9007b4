package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide JSON logger, with every record
// enriched with the active span's trace_id/span_id (see TraceHandler)
// so a log line can be correlated back to the otel trace it was emitted
// under.
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}

	json := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(NewTraceHandler(json))
}
