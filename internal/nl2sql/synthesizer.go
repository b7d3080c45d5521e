package nl2sql

import (
	"context"
	"fmt"
	"time"

	"github.com/dbchat/dbchat/internal/conversation"
	"github.com/dbchat/dbchat/internal/observability"
)

const (
	StageQuery  = "query"
	StageAnswer = "answer"
)

// QuerySynthesizer asks the completion service for one SQL statement.
type QuerySynthesizer struct {
	completer Completer
	model     string
}

func NewQuerySynthesizer(completer Completer, model string) *QuerySynthesizer {
	return &QuerySynthesizer{completer: completer, model: model}
}

// SynthesizeQuery returns the completion text exactly as received. The
// result is untrusted until it passes sqlguard.Validate.
func (s *QuerySynthesizer) SynthesizeQuery(ctx context.Context, schema, question string, history *conversation.History) (string, error) {
	prompt, err := renderPrompt(queryPrompt, queryPromptData{
		Schema:   schema,
		Question: question,
		History:  history.Turns(),
	})
	if err != nil {
		return "", err
	}
	return complete(ctx, s.completer, StageQuery, CompletionRequest{Model: s.model, Temperature: 0, Prompt: prompt})
}

// AnswerSynthesizer explains an execution result in natural language.
type AnswerSynthesizer struct {
	completer Completer
	model     string
}

func NewAnswerSynthesizer(completer Completer, model string) *AnswerSynthesizer {
	return &AnswerSynthesizer{completer: completer, model: model}
}

// SynthesizeAnswer is called for failed executions too; result then carries
// the failure description.
func (s *AnswerSynthesizer) SynthesizeAnswer(ctx context.Context, schema, question, query string, result fmt.Stringer, history *conversation.History) (string, error) {
	response := ""
	if result != nil {
		response = result.String()
	}
	prompt, err := renderPrompt(answerPrompt, answerPromptData{
		Schema:   schema,
		Question: question,
		Query:    query,
		Response: response,
		History:  history.Turns(),
	})
	if err != nil {
		return "", err
	}
	return complete(ctx, s.completer, StageAnswer, CompletionRequest{Model: s.model, Temperature: 0, Prompt: prompt})
}

func complete(ctx context.Context, completer Completer, stage string, req CompletionRequest) (string, error) {
	start := time.Now()
	text, err := completer.Complete(ctx, req)
	observability.ObserveCompletion(stage, err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", stage, err)
	}
	return text, nil
}
