package chat

import (
	"fmt"
	"unicode/utf8"
)

const (
	// RoleSystem marks the fixed preamble messages (system prompt and cards).
	RoleSystem = "system"
	// RolePlayer is the user's side of the conversation. Ollama's chat API
	// calls this role "user".
	RolePlayer = "user"
	// RoleNarrator is the model's side of the conversation. Ollama's chat API
	// calls this role "assistant".
	RoleNarrator = "assistant"
)

// Turn is one unit of conversation history: the player's input or the
// narrator's generated reply. Tokens is an approximation produced by the
// session's token counter when the turn is created; it is never recomputed.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Tokens  int    `json:"-"`
}

// Message is the wire shape Ollama's /api/chat expects. Turns carry a local
// token estimate that must not leak into the request body.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToMessage strips the local token accounting from a turn.
func (t Turn) ToMessage() Message {
	return Message{Role: t.Role, Content: t.Content}
}

// ToMessages converts an ordered sequence of turns to wire messages.
func ToMessages(turns []Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, t.ToMessage())
	}
	return msgs
}

// Preview returns the turn's content shortened to at most n runes for debug
// display. Truncating on runes rather than bytes keeps multi-byte characters
// intact.
func (t Turn) Preview(n int) string {
	if utf8.RuneCountInString(t.Content) <= n {
		return t.Content
	}
	return string([]rune(t.Content)[:n]) + "..."
}

// ValidRole reports whether role is one of the three conversation roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RolePlayer, RoleNarrator:
		return true
	}
	return false
}

func (t Turn) Validate() error {
	if !ValidRole(t.Role) {
		return fmt.Errorf("invalid turn role: %q", t.Role)
	}
	if t.Content == "" {
		return fmt.Errorf("turn content cannot be empty")
	}
	return nil
}
