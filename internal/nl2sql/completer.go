// Package nl2sql turns questions into SQL and SQL results into answers by
// prompting a chat completion service.
package nl2sql

import "context"

type CompletionRequest struct {
	Model       string
	Temperature float64
	Prompt      string
}

// Completer sends one prompt as a single user message and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
