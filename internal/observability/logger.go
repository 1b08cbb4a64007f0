// Package observability holds the logging, tracing and metrics plumbing shared by
// the API server and the query service.
package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/querydesk/querydesk/internal/config"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// FromContext returns logger tagged with the request's trace id, if there is one.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return logger.With(slog.String("trace_id", traceID))
	}
	return logger
}
