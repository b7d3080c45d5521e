package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dbchat/dbchat/internal/conversation"
	"github.com/dbchat/dbchat/internal/observability"
)

// CourtesyReply answers acknowledgements without touching the database.
const CourtesyReply = "You're welcome! I'm here to help. 😊"

const chainErrorPrefix = "Error in chain invocation: "

// courtesyPhrases match anywhere in the lower-cased question, so "ok"
// also matches inside "booking".
var courtesyPhrases = []string{"ok", "thank you", "thanks", "great", "awesome", "nice", "well done", "cool"}

// Database is the live connection a question is answered against.
type Database interface {
	Runner
	SchemaText(ctx context.Context) (string, error)
}

type QuerySynthesizer interface {
	SynthesizeQuery(ctx context.Context, schema, question string, history *conversation.History) (string, error)
}

type AnswerSynthesizer interface {
	SynthesizeAnswer(ctx context.Context, schema, question, query string, result fmt.Stringer, history *conversation.History) (string, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, runner Runner, candidate string) ExecutionResult
}

type Orchestrator struct {
	queries  QuerySynthesizer
	executor QueryExecutor
	answers  AnswerSynthesizer
	logger   *slog.Logger
}

func NewOrchestrator(queries QuerySynthesizer, executor QueryExecutor, answers AnswerSynthesizer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Orchestrator{queries: queries, executor: executor, answers: answers, logger: logger}
}

// IsCourtesy reports whether question is a plain acknowledgement.
func IsCourtesy(question string) bool {
	lower := strings.ToLower(question)
	for _, phrase := range courtesyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Respond always returns a reply. Schema and completion failures become an
// error string; database failures are explained by the answer synthesizer.
// history is read, never appended to.
func (o *Orchestrator) Respond(ctx context.Context, question string, conn Database, history *conversation.History) (reply string) {
	if IsCourtesy(question) {
		o.logger.LogAttrs(ctx, slog.LevelInfo, "pipeline_courtesy", observability.TraceAttr(ctx))
		observability.ObservePipelineOutcome(observability.OutcomeCourtesy)
		return CourtesyReply
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			reply = o.fail(ctx, fmt.Errorf("panic: %v", recovered))
		}
	}()

	answer, err := o.answer(ctx, question, conn, history)
	if err != nil {
		return o.fail(ctx, err)
	}
	observability.ObservePipelineOutcome(observability.OutcomeAnswered)
	return answer
}

func (o *Orchestrator) answer(ctx context.Context, question string, conn Database, history *conversation.History) (string, error) {
	if conn == nil {
		return "", fmt.Errorf("no database connection")
	}
	schema, err := conn.SchemaText(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch schema: %w", err)
	}
	query, err := o.queries.SynthesizeQuery(ctx, schema, question, history)
	if err != nil {
		return "", err
	}
	result := o.executor.Execute(ctx, conn, query)
	return o.answers.SynthesizeAnswer(ctx, schema, question, query, result, history)
}

func (o *Orchestrator) fail(ctx context.Context, err error) string {
	o.logger.LogAttrs(ctx, slog.LevelError, "pipeline_failed",
		observability.TraceAttr(ctx),
		slog.Any("error", err),
	)
	observability.ObservePipelineOutcome(observability.OutcomeFailed)
	return chainErrorPrefix + err.Error()
}
