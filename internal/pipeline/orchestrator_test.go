package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dbchat/dbchat/internal/conversation"
)

func TestRespondCourtesyShortCircuit(t *testing.T) {
	questions := []string{"thanks!", "Thank you so much", "OK", "great job", "Awesome", "nice", "Well done!", "cool", "list bookings"}
	for _, question := range questions {
		t.Run(question, func(t *testing.T) {
			conn := &fakeDatabase{schema: "CREATE TABLE users (id INT)"}
			queries := &fakeQuerySynth{}
			executor := &fakeExecutor{}
			answers := &fakeAnswerSynth{}
			orchestrator := NewOrchestrator(queries, executor, answers, nil)

			got := orchestrator.Respond(context.Background(), question, conn, conversation.NewHistory())
			if got != CourtesyReply {
				t.Fatalf("Respond() = %q, want %q", got, CourtesyReply)
			}
			if conn.schemaCalls != 0 || conn.runCalls != 0 || queries.calls != 0 || executor.calls != 0 || answers.calls != 0 {
				t.Fatalf("collaborators called: schema=%d run=%d query=%d exec=%d answer=%d",
					conn.schemaCalls, conn.runCalls, queries.calls, executor.calls, answers.calls)
			}
		})
	}
}

func TestIsCourtesy(t *testing.T) {
	if IsCourtesy("how many users are there?") {
		t.Fatal("IsCourtesy() = true for a data question")
	}
	if !IsCourtesy("THANKS") {
		t.Fatal("IsCourtesy() should be case-insensitive")
	}
}

func TestRespondRoundTrip(t *testing.T) {
	conn := &fakeDatabase{schema: "CREATE TABLE users (id INT, name TEXT)"}
	queries := &fakeQuerySynth{query: "SELECT COUNT(*) FROM users"}
	executor := &fakeExecutor{result: Success("42")}
	answers := &fakeAnswerSynth{answer: "There are 42 users."}
	history := conversation.NewHistory(conversation.Assistant(conversation.Greeting), conversation.Human("how many users are there?"))
	orchestrator := NewOrchestrator(queries, executor, answers, nil)

	got := orchestrator.Respond(context.Background(), "how many users are there?", conn, history)
	if got != "There are 42 users." {
		t.Fatalf("Respond() = %q", got)
	}

	if conn.schemaCalls != 1 || queries.calls != 1 || executor.calls != 1 || answers.calls != 1 {
		t.Fatalf("calls: schema=%d query=%d exec=%d answer=%d", conn.schemaCalls, queries.calls, executor.calls, answers.calls)
	}
	if queries.schema != conn.schema || queries.question != "how many users are there?" || queries.history != history {
		t.Fatalf("query synth args = %+v", queries)
	}
	if executor.candidate != "SELECT COUNT(*) FROM users" || executor.runner != Runner(conn) {
		t.Fatalf("executor args = %q / %v", executor.candidate, executor.runner)
	}
	if answers.query != "SELECT COUNT(*) FROM users" || answers.result != "42" {
		t.Fatalf("answer synth got query=%q result=%q", answers.query, answers.result)
	}
	if answers.schema != conn.schema || answers.question != "how many users are there?" || answers.history != history {
		t.Fatalf("answer synth args = %+v", answers)
	}
	if history.Len() != 2 {
		t.Fatalf("history.Len() = %d, Respond must not append", history.Len())
	}
}

func TestRespondRejectsLeadingProseAndExplainsFailure(t *testing.T) {
	conn := &fakeDatabase{schema: "CREATE TABLE users (id INT)"}
	queries := &fakeQuerySynth{query: "Here is the query: SELECT * FROM users"}
	answers := &fakeAnswerSynth{answer: "The generated query was not valid SQL."}
	orchestrator := NewOrchestrator(queries, NewExecutor(nil, nil), answers, nil)

	got := orchestrator.Respond(context.Background(), "show all users", conn, nil)
	if got != "The generated query was not valid SQL." {
		t.Fatalf("Respond() = %q", got)
	}
	if conn.runCalls != 0 {
		t.Fatalf("database run calls = %d, want 0", conn.runCalls)
	}
	if answers.calls != 1 || !strings.Contains(answers.result, "Invalid SQL query generated: Here is the query") {
		t.Fatalf("answer synth result = %q", answers.result)
	}
}

func TestRespondExplainsDatabaseFailure(t *testing.T) {
	conn := &fakeDatabase{schema: "s", runErr: errors.New("Table 'shop.x' doesn't exist")}
	queries := &fakeQuerySynth{query: "DROP TABLE x"}
	answers := &fakeAnswerSynth{answer: "That table does not exist."}
	orchestrator := NewOrchestrator(queries, NewExecutor(nil, nil), answers, nil)

	got := orchestrator.Respond(context.Background(), "drop x", conn, nil)
	if got != "That table does not exist." {
		t.Fatalf("Respond() = %q", got)
	}
	if conn.runCalls != 1 {
		t.Fatalf("run calls = %d", conn.runCalls)
	}
	if answers.result != "Error executing SQL query: Table 'shop.x' doesn't exist" {
		t.Fatalf("answer synth result = %q", answers.result)
	}
}

func TestRespondConvertsFailuresToErrorString(t *testing.T) {
	boom := errors.New("completion service unavailable")
	tests := []struct {
		name       string
		conn       *fakeDatabase
		queries    *fakeQuerySynth
		answers    *fakeAnswerSynth
		wantSubstr string
	}{
		{
			name:       "query completion",
			conn:       &fakeDatabase{schema: "s"},
			queries:    &fakeQuerySynth{err: boom},
			answers:    &fakeAnswerSynth{},
			wantSubstr: "completion service unavailable",
		},
		{
			name:       "answer completion",
			conn:       &fakeDatabase{schema: "s"},
			queries:    &fakeQuerySynth{query: "SELECT 1"},
			answers:    &fakeAnswerSynth{err: boom},
			wantSubstr: "completion service unavailable",
		},
		{
			name:       "schema fetch",
			conn:       &fakeDatabase{schemaErr: errors.New("access denied")},
			queries:    &fakeQuerySynth{query: "SELECT 1"},
			answers:    &fakeAnswerSynth{},
			wantSubstr: "access denied",
		},
		{
			name:       "panicking synthesizer",
			conn:       &fakeDatabase{schema: "s"},
			queries:    &fakeQuerySynth{panicWith: "nil map"},
			answers:    &fakeAnswerSynth{},
			wantSubstr: "panic: nil map",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			executor := &fakeExecutor{result: Success("1")}
			orchestrator := NewOrchestrator(tc.queries, executor, tc.answers, nil)

			got := orchestrator.Respond(context.Background(), "how many rows?", tc.conn, nil)
			if !strings.HasPrefix(got, "Error in chain invocation: ") {
				t.Fatalf("Respond() = %q, want error-literal prefix", got)
			}
			if !strings.Contains(got, tc.wantSubstr) {
				t.Fatalf("Respond() = %q, want substring %q", got, tc.wantSubstr)
			}
		})
	}
}

func TestRespondWithoutConnection(t *testing.T) {
	orchestrator := NewOrchestrator(&fakeQuerySynth{}, &fakeExecutor{}, &fakeAnswerSynth{}, nil)
	got := orchestrator.Respond(context.Background(), "how many users?", nil, nil)
	if got != "Error in chain invocation: no database connection" {
		t.Fatalf("Respond() = %q", got)
	}
}

type fakeDatabase struct {
	schema      string
	schemaErr   error
	runErr      error
	schemaCalls int
	runCalls    int
}

func (f *fakeDatabase) SchemaText(context.Context) (string, error) {
	f.schemaCalls++
	return f.schema, f.schemaErr
}

func (f *fakeDatabase) Run(context.Context, string) (string, error) {
	f.runCalls++
	return "", f.runErr
}

type fakeQuerySynth struct {
	query     string
	err       error
	panicWith any
	calls     int
	schema    string
	question  string
	history   *conversation.History
}

func (f *fakeQuerySynth) SynthesizeQuery(_ context.Context, schema, question string, history *conversation.History) (string, error) {
	f.calls++
	f.schema, f.question, f.history = schema, question, history
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.query, f.err
}

type fakeExecutor struct {
	result    ExecutionResult
	calls     int
	runner    Runner
	candidate string
}

func (f *fakeExecutor) Execute(_ context.Context, runner Runner, candidate string) ExecutionResult {
	f.calls++
	f.runner, f.candidate = runner, candidate
	return f.result
}

type fakeAnswerSynth struct {
	answer   string
	err      error
	calls    int
	schema   string
	question string
	query    string
	result   string
	history  *conversation.History
}

func (f *fakeAnswerSynth) SynthesizeAnswer(_ context.Context, schema, question, query string, result fmt.Stringer, history *conversation.History) (string, error) {
	f.calls++
	f.schema, f.question, f.query, f.history = schema, question, query, history
	f.result = result.String()
	return f.answer, f.err
}
