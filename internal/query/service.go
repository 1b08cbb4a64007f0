package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/observability"
)

// Unrecognized kinds come from callers and are not used as metric labels.
const unknownKindLabel = "unknown"

var _ Executor = (*Service)(nil)

type Resolver interface {
	Resolve(kind engine.Kind) (engine.Adapter, error)
}

// Service validates the engine kind, hands the call to the matching adapter and
// normalizes whatever comes back. It keeps no per-call state.
type Service struct {
	resolver Resolver
	logger   *slog.Logger
}

func NewService(resolver Resolver, logger *slog.Logger) (*Service, error) {
	if resolver == nil {
		return nil, fmt.Errorf("engine resolver is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{resolver: resolver, logger: logger}, nil
}

func (s *Service) TestConnection(ctx context.Context, descriptor engine.Descriptor) (string, error) {
	kind := string(descriptor.Kind)
	adapter, err := s.resolver.Resolve(descriptor.Kind)
	if err != nil {
		observability.ObserveConnectionTest(unknownKindLabel, outcomeOf(err))
		return "", err
	}

	start := time.Now()
	message, err := adapter.TestConnection(ctx, descriptor)
	observability.ObserveConnectionTest(kind, outcomeOf(err))
	logger := observability.FromContext(ctx, s.logger)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "connection test failed",
			append(connectionAttrs(adapter, descriptor, time.Since(start)), slog.Any("error", err))...)
		return "", err
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "connection test succeeded", connectionAttrs(adapter, descriptor, time.Since(start))...)
	return message, nil
}

func (s *Service) ExecuteQuery(ctx context.Context, descriptor engine.Descriptor, sqlText string) (Result, error) {
	kind := string(descriptor.Kind)
	adapter, err := s.resolver.Resolve(descriptor.Kind)
	if err != nil {
		observability.ObserveQueryExecution(unknownKindLabel, outcomeOf(err), 0, 0)
		return Result{}, err
	}

	start := time.Now()
	raw, err := adapter.RunQuery(ctx, descriptor, sqlText)
	if err != nil {
		elapsed := time.Since(start)
		observability.ObserveQueryExecution(kind, outcomeOf(err), 0, elapsed)
		observability.FromContext(ctx, s.logger).LogAttrs(ctx, slog.LevelWarn, "query execution failed",
			append(connectionAttrs(adapter, descriptor, elapsed), slog.Any("error", err))...)
		return Result{}, err
	}

	result := normalizeWith(raw, Chain, observability.IncrementUnsupportedCells)
	elapsed := time.Since(start)
	observability.ObserveQueryExecution(kind, observability.OutcomeSuccess, len(result.Rows), elapsed)
	observability.FromContext(ctx, s.logger).LogAttrs(ctx, slog.LevelDebug, "query executed",
		append(connectionAttrs(adapter, descriptor, elapsed),
			slog.Int("columns", len(result.Columns)),
			slog.Int("rows", len(result.Rows)),
		)...)
	return result, nil
}

// connectionAttrs never carries the password: the address is redacted.
func connectionAttrs(adapter engine.Adapter, descriptor engine.Descriptor, elapsed time.Duration) []slog.Attr {
	return []slog.Attr{
		slog.String("engine", string(descriptor.Kind)),
		slog.String("address", engine.RedactedAddress(adapter.Scheme(), descriptor)),
		slog.String("duration", elapsed.String()),
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return observability.OutcomeSuccess
	}
	var unsupported *engine.UnsupportedEngineError
	var connErr *engine.ConnectionError
	var queryErr *engine.QueryError
	switch {
	case errors.As(err, &unsupported):
		return observability.OutcomeUnsupportedEngine
	case errors.As(err, &connErr):
		return observability.OutcomeConnectionError
	case errors.As(err, &queryErr):
		return observability.OutcomeQueryError
	default:
		return observability.OutcomeError
	}
}
