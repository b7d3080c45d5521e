// Package dbchatctl is the terminal client for the dbchat API. It offers an
// interactive chat session plus one-shot commands for scripting.
package dbchatctl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dbchat/dbchat/internal/conversation"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
}

// requestError marks failures talking to the API. Everything else cobra
// returns is a usage problem.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

var errUsage = errors.New("a command is required")

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	if args == nil {
		args = []string{}
	}

	root := newRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(stdin)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(stderr, err)
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return 1
	}
	return 2
}

func newRootCommand(defaults Options) *cobra.Command {
	var (
		baseURL string
		apiKey  string
		timeout time.Duration
	)
	newClient := func() *client {
		httpClient := defaults.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: timeout}
		}
		return &client{
			baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
			apiKey:  strings.TrimSpace(apiKey),
			http:    httpClient,
		}
	}

	root := &cobra.Command{
		Use:           "dbchatctl",
		Short:         "Ask questions about your database in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errUsage
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "dbchat API base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		&cobra.Command{
			Use:   "chat",
			Short: "Start an interactive chat session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runChat(cmd.Context(), newClient(), cmd.InOrStdin(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "ask <question>",
			Short: "Ask a single question and print the answer",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				answer, err := newClient().ask(cmd.Context(), strings.Join(args, " "), nil)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), answerBox(answer))
				return nil
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the schema description the assistant works from",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				var response struct {
					Schema string `json:"schema"`
				}
				if err := newClient().call(cmd.Context(), http.MethodGet, "/v1/schema", nil, &response); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), response.Schema)
				return nil
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Check API liveness",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				var raw json.RawMessage
				if err := newClient().call(cmd.Context(), http.MethodGet, "/v1/health", nil, &raw); err != nil {
					return err
				}
				if pretty, ok := prettyJSON(raw); ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), pretty)
				}
				return nil
			},
		},
	)
	return root
}

func runChat(ctx context.Context, c *client, in io.Reader, out io.Writer) error {
	history := conversation.NewHistory(conversation.Assistant(conversation.Greeting))
	_, _ = fmt.Fprintln(out, answerBox(conversation.Greeting))

	prompt := pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("You: ")
	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		answer, err := c.ask(ctx, question, history)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			answer = "Error: " + err.Error()
		}
		history.Append(conversation.Human(question))
		history.Append(conversation.Assistant(answer))
		_, _ = fmt.Fprintln(out, answerBox(answer))
	}
}

func answerBox(answer string) string {
	return pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Assistant")).
		Sprint(answer)
}

func (c *client) ask(ctx context.Context, question string, history *conversation.History) (string, error) {
	request := map[string]any{"question": question}
	if history != nil {
		request["history"] = history.Messages()
	}
	var response struct {
		Answer string `json:"answer"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/chat", request, &response); err != nil {
		return "", err
	}
	return response.Answer, nil
}

func (c *client) call(ctx context.Context, method, path string, body, out any) error {
	code, responseBody, err := doRequest(ctx, c.http, method, c.baseURL+path, c.apiKey, body)
	if err != nil {
		return &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return &requestError{err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return &requestError{err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
