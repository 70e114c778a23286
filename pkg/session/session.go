// Package session owns the running game: the scenario, the conversation
// transcript, and the token-budget window applied to every prompt.
package session

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"superzork/pkg/chat"
	"superzork/pkg/scenario"
	"superzork/pkg/tokens"
)

// ErrNothingToUndo is returned by Undo when the most recent turn is not a
// narrator turn, including the case of an empty transcript.
var ErrNothingToUndo = errors.New("nothing to undo")

// Session is the single-player game state: one scenario, one transcript.
// It is constructed at session start and discarded at quit. Sessions are not
// safe for concurrent use; the game loop is strictly one turn at a time.
type Session struct {
	ID       uuid.UUID
	scenario *scenario.Scenario
	counter  tokens.Counter
	logger   *slog.Logger

	// preamble is the fixed system prompt and opening message. It is sent
	// with every request and is never evicted.
	preamble       []chat.Turn
	preambleTokens int

	transcript []chat.Turn

	// undone holds the narrator turn removed by the last Undo, supporting
	// exactly one level of undo.
	undone *chat.Turn
}

// New builds a session for the scenario. The token counter is pluggable so
// tests can use a deterministic one; token accounting is approximate by
// design.
func New(s *scenario.Scenario, counter tokens.Counter, logger *slog.Logger) *Session {
	sess := &Session{
		ID:       uuid.New(),
		scenario: s,
		counter:  counter,
		logger:   logger,
	}
	sess.preamble = []chat.Turn{
		sess.newTurn(chat.RoleSystem, scenario.SystemPrompt),
		sess.newTurn(chat.RolePlayer, s.OpeningMessage()),
	}
	for _, t := range sess.preamble {
		sess.preambleTokens += t.Tokens
	}
	logger.Debug("session created",
		"session_id", sess.ID,
		"model", s.Model,
		"token_budget", s.NumTokens,
		"preamble_tokens", sess.preambleTokens)
	return sess
}

// Scenario returns the immutable scenario record.
func (s *Session) Scenario() *scenario.Scenario {
	return s.scenario
}

// PreambleTokens is the approximate size of the fixed preamble.
func (s *Session) PreambleTokens() int {
	return s.preambleTokens
}

func (s *Session) newTurn(role, content string) chat.Turn {
	return chat.Turn{
		Role:    role,
		Content: content,
		Tokens:  s.counter.Count(content),
	}
}

// AppendPlayer adds the player's input to the end of the transcript. No
// budget check happens at append time; the window is enforced when the next
// prompt is built.
func (s *Session) AppendPlayer(content string) {
	s.appendTurn(chat.RolePlayer, content)
}

// AppendNarration adds a narrator reply to the end of the transcript.
func (s *Session) AppendNarration(content string) {
	s.appendTurn(chat.RoleNarrator, content)
}

// appendTurn drops turns that fail validation, such as an empty narration
// from a stream that produced no content, rather than polluting the prompt.
func (s *Session) appendTurn(role, content string) {
	turn := s.newTurn(role, content)
	if err := turn.Validate(); err != nil {
		s.logger.Warn("dropping invalid turn", "session_id", s.ID, "error", err)
		return
	}
	s.transcript = append(s.transcript, turn)
}

// Undo removes the most recent narrator turn so the player can steer the
// story differently. It fails with ErrNothingToUndo unless the latest turn
// is a narrator turn, so a second undo in a row is rejected without changing
// the transcript. The removed turn is returned and retained for Undone.
func (s *Session) Undo() (chat.Turn, error) {
	if len(s.transcript) == 0 {
		return chat.Turn{}, ErrNothingToUndo
	}
	last := s.transcript[len(s.transcript)-1]
	if last.Role != chat.RoleNarrator {
		return chat.Turn{}, ErrNothingToUndo
	}
	s.transcript = s.transcript[:len(s.transcript)-1]
	s.undone = &last
	s.logger.Debug("narration undone", "session_id", s.ID, "tokens", last.Tokens)
	return last, nil
}

// Undone returns the narrator turn removed by the last Undo, or nil.
func (s *Session) Undone() *chat.Turn {
	return s.undone
}

// DebugView returns the transcript as an ordered copy for inspection. The
// preamble is not included; it is configuration, not history.
func (s *Session) DebugView() []chat.Turn {
	view := make([]chat.Turn, len(s.transcript))
	copy(view, s.transcript)
	return view
}

// Len reports the number of turns currently in the transcript.
func (s *Session) Len() int {
	return len(s.transcript)
}

// HistoryTokens is the approximate token total of the current transcript.
func (s *Session) HistoryTokens() int {
	total := 0
	for _, t := range s.transcript {
		total += t.Tokens
	}
	return total
}

// OpeningPrompt returns the messages for the scene-setting call made before
// the player's first input: just the preamble, no history.
func (s *Session) OpeningPrompt() []chat.Message {
	return chat.ToMessages(s.preamble)
}

// BuildPrompt appends the player's input as a new turn and returns the full
// bounded message sequence for the inference call: preamble, windowed
// history, new turn. If the input cannot fit the budget even with all
// history evicted, it returns ErrOversizedInput and the transcript is left
// unchanged.
func (s *Session) BuildPrompt(input string) ([]chat.Message, error) {
	turn := s.newTurn(chat.RolePlayer, input)
	evicted, err := s.fitWindow(turn)
	if err != nil {
		return nil, err
	}
	if evicted > 0 {
		s.logger.Debug("evicted history to fit token budget",
			"session_id", s.ID,
			"evicted_turns", evicted,
			"history_tokens", s.HistoryTokens())
	}
	s.transcript = append(s.transcript, turn)

	msgs := make([]chat.Message, 0, len(s.preamble)+len(s.transcript))
	msgs = append(msgs, chat.ToMessages(s.preamble)...)
	msgs = append(msgs, chat.ToMessages(s.transcript)...)
	return msgs, nil
}
