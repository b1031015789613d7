// Package observability provides the coordinator's operational logger.
//
// Operational logging uses the standard library's structured logger
// rather than pulling in a framework dependency nothing else in this
// repo needs. The audit trail (internal/audit) is a separate,
// hash-chained concern, not a logging library's job.
package observability

import (
	"log/slog"
	"os"
)

// New returns a JSON structured logger writing to stderr, matching the
// teacher's convention of keeping stdout free for machine-readable
// responses (internal/cli/output.go writes JSON to stdout, logs to
// stderr).
func New(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With(slog.String("component", component))
}
