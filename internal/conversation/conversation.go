// Package conversation models the chat transcript a caller keeps between
// pipeline invocations.
package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Greeting opens every new chat session.
const Greeting = "Hello! I'm a SQL assistant. Ask me anything about your database."

// Turn is either a HumanTurn or an AssistantTurn. The set is closed by the
// unexported marker method.
type Turn interface {
	Content() string
	isTurn()
}

type HumanTurn struct {
	text string
}

func Human(text string) HumanTurn { return HumanTurn{text: text} }

func (t HumanTurn) Content() string { return t.text }
func (HumanTurn) isTurn()           {}

type AssistantTurn struct {
	text string
}

func Assistant(text string) AssistantTurn { return AssistantTurn{text: text} }

func (t AssistantTurn) Content() string { return t.text }
func (AssistantTurn) isTurn()           {}

func RoleOf(turn Turn) Role {
	switch turn.(type) {
	case HumanTurn:
		return RoleHuman
	case AssistantTurn:
		return RoleAssistant
	default:
		panic(fmt.Sprintf("conversation: unknown turn type %T", turn))
	}
}

func NewTurn(role Role, content string) (Turn, error) {
	switch Role(strings.ToLower(strings.TrimSpace(string(role)))) {
	case RoleHuman, "user":
		return Human(content), nil
	case RoleAssistant, "ai":
		return Assistant(content), nil
	default:
		return nil, fmt.Errorf("unknown turn role %q", role)
	}
}

// History is append-only. Appended turns are never edited or removed, and
// Turns hands out a copy so callers cannot reach the backing array.
type History struct {
	turns []Turn
}

func NewHistory(turns ...Turn) *History {
	h := &History{turns: make([]Turn, 0, len(turns))}
	for _, turn := range turns {
		h.Append(turn)
	}
	return h
}

func (h *History) Append(turn Turn) {
	if turn == nil {
		return
	}
	h.turns = append(h.turns, turn)
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.turns)
}

func (h *History) Turns() []Turn {
	if h == nil {
		return nil
	}
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Speaker is the label a transcript shows for turn.
func Speaker(turn Turn) string {
	switch turn.(type) {
	case HumanTurn:
		return "Human"
	case AssistantTurn:
		return "AI"
	default:
		panic(fmt.Sprintf("conversation: unknown turn type %T", turn))
	}
}

func Render(turn Turn) string {
	return Speaker(turn) + ": " + turn.Content()
}

// Transcript renders the history as "Human: ..." / "AI: ..." lines.
func (h *History) Transcript() string {
	turns := h.Turns()
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, Render(turn))
	}
	return strings.Join(lines, "\n")
}

// Message is the wire form of a turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func (h *History) Messages() []Message {
	turns := h.Turns()
	out := make([]Message, 0, len(turns))
	for _, turn := range turns {
		out = append(out, Message{Role: RoleOf(turn), Content: turn.Content()})
	}
	return out
}

func FromMessages(messages []Message) (*History, error) {
	h := NewHistory()
	for i, msg := range messages {
		turn, err := NewTurn(msg.Role, msg.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		h.Append(turn)
	}
	return h, nil
}

func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Messages())
}

func (h *History) UnmarshalJSON(data []byte) error {
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return err
	}
	decoded, err := FromMessages(messages)
	if err != nil {
		return err
	}
	if len(h.turns) > 0 {
		return fmt.Errorf("history already has %d turns", len(h.turns))
	}
	h.turns = decoded.turns
	return nil
}
