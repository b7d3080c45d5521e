// Package audit records every statement the executor handled.
package audit

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dbchat/dbchat/internal/observability"
)

const maxOutcomeBytes = 2048

type Record struct {
	ID         string
	TraceID    string
	Query      string
	Kind       string
	OK         bool
	Outcome    string
	DurationMs int64
	ExecutedAt time.Time
}

// NewRecord stamps a record with a fresh id and the request trace id.
// Outcome is truncated to keep archive rows small.
func NewRecord(ctx context.Context, query, kind string, ok bool, outcome string, elapsed time.Duration, executedAt time.Time) Record {
	return Record{
		ID:         uuid.NewString(),
		TraceID:    observability.TraceIDFromContext(ctx),
		Query:      query,
		Kind:       kind,
		OK:         ok,
		Outcome:    truncate(outcome, maxOutcomeBytes),
		DurationMs: elapsed.Milliseconds(),
		ExecutedAt: executedAt.UTC(),
	}
}

type Sink interface {
	Write(ctx context.Context, record Record)
}

// Sinks fans a record out to every non-nil sink in order.
type Sinks []Sink

func (s Sinks) Write(ctx context.Context, record Record) {
	for _, sink := range s {
		if sink != nil {
			sink.Write(ctx, record)
		}
	}
}

type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(ctx context.Context, record Record) {
	if s.Logger == nil {
		return
	}
	s.Logger.LogAttrs(ctx, slog.LevelInfo, "sql_audit",
		slog.String("audit_id", record.ID),
		slog.String("query", record.Query),
		slog.String("kind", record.Kind),
		slog.Bool("ok", record.OK),
		slog.Int64("duration_ms", record.DurationMs),
	)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
