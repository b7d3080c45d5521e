// Package pipeline turns one question into one answer: schema, query
// synthesis, guarded execution and answer synthesis.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbchat/dbchat/internal/audit"
	"github.com/dbchat/dbchat/internal/observability"
	"github.com/dbchat/dbchat/internal/sqlguard"
)

const executionErrorPrefix = "Error executing SQL query: "

// Runner executes one statement and renders its rows as text.
type Runner interface {
	Run(ctx context.Context, query string) (string, error)
}

type Executor struct {
	logger *slog.Logger
	audit  audit.Sink
	clock  func() time.Time
}

func NewExecutor(logger *slog.Logger, sink audit.Sink) *Executor {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Executor{logger: logger, audit: sink, clock: time.Now}
}

// Execute validates candidate and, if accepted, runs it exactly once.
// Validation and database errors, panics included, come back as Failure.
func (e *Executor) Execute(ctx context.Context, runner Runner, candidate string) ExecutionResult {
	e.logger.LogAttrs(ctx, slog.LevelInfo, "sql_query_generated",
		observability.TraceAttr(ctx),
		slog.String("query", candidate),
	)

	start := e.clock()
	kind := sqlguard.KindRejected
	query, err := sqlguard.Validate(candidate)
	var payload string
	if err == nil {
		kind = sqlguard.Classify(query)
		payload, err = runOnce(ctx, runner, query)
	} else {
		query = candidate
	}
	elapsed := e.clock().Sub(start)

	var result ExecutionResult
	if err != nil {
		result = Failure(executionErrorPrefix + err.Error())
		e.logger.LogAttrs(ctx, slog.LevelWarn, "sql_execution_error",
			observability.TraceAttr(ctx),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	} else {
		result = Success(payload)
		e.logger.LogAttrs(ctx, slog.LevelInfo, "sql_query_response",
			observability.TraceAttr(ctx),
			slog.String("kind", string(kind)),
			slog.String("response", payload),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
	}

	observability.ObserveSQLExecution(string(kind), result.OK(), elapsed)
	if e.audit != nil {
		e.audit.Write(ctx, audit.NewRecord(ctx, query, string(kind), result.OK(), result.String(), elapsed, start))
	}
	return result
}

func runOnce(ctx context.Context, runner Runner, query string) (payload string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	if runner == nil {
		return "", fmt.Errorf("no database connection")
	}
	return runner.Run(ctx, query)
}
