package pipeline

// ExecutionResult is the outcome of one executor call: a rendered result
// set on success or a failure description. The zero value is a successful
// empty result.
type ExecutionResult struct {
	failed bool
	text   string
}

func Success(payload string) ExecutionResult {
	return ExecutionResult{text: payload}
}

func Failure(description string) ExecutionResult {
	return ExecutionResult{failed: true, text: description}
}

func (r ExecutionResult) OK() bool {
	return !r.failed
}

// Payload is the rendered rows, or "" for a failure.
func (r ExecutionResult) Payload() string {
	if r.failed {
		return ""
	}
	return r.text
}

// FailureText is the failure description, or "" for a success.
func (r ExecutionResult) FailureText() string {
	if !r.failed {
		return ""
	}
	return r.text
}

// String is the form handed to the answer prompt.
func (r ExecutionResult) String() string {
	return r.text
}
