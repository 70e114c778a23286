package session

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superzork/pkg/chat"
	"superzork/pkg/scenario"
)

// stubCounter returns fixed counts for known strings and a per-word count
// otherwise, so tests can stage exact token arithmetic.
type stubCounter struct {
	counts map[string]int
}

func (c stubCounter) Count(text string) int {
	if n, ok := c.counts[text]; ok {
		return n
	}
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

func testScenario(budget int) *scenario.Scenario {
	return &scenario.Scenario{
		Model:       "test-model",
		OllamaURL:   "http://localhost:11434",
		NumTokens:   budget,
		Temperature: 0.7,
		StoryCard:   "A test story.",
		PlayerCard:  "A test player.",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// systemPromptKey keys the stub counter to the fixed system prompt without
// repeating the whole constant at call sites.
func systemPromptKey() string {
	return scenario.SystemPrompt
}

// newTestSession stages a session whose preamble counts exactly
// preambleTokens, split across the two preamble turns.
func newTestSession(t *testing.T, budget, preambleTokens int) *Session {
	t.Helper()
	scn := testScenario(budget)
	counter := stubCounter{counts: map[string]int{
		scenario.SystemPrompt: preambleTokens / 2,
		scn.OpeningMessage():  preambleTokens - preambleTokens/2,
	}}
	s := New(scn, counter, testLogger())
	require.Equal(t, preambleTokens, s.PreambleTokens())
	return s
}

func TestAppendDropsEmptyContent(t *testing.T) {
	s := newTestSession(t, 100, 8)

	s.AppendNarration("")
	s.AppendPlayer("")

	assert.Zero(t, s.Len())
	assert.Zero(t, s.HistoryTokens())
}

func TestAppendDoesNotEnforceBudget(t *testing.T) {
	s := newTestSession(t, 10, 8)

	// Appends may exceed the budget; the window is enforced at prompt-build
	// time, not append time.
	s.AppendPlayer("one two three four five six seven eight nine ten")
	s.AppendNarration("a very long narration with many more words than the budget allows here")

	assert.Equal(t, 2, s.Len())
	assert.Greater(t, s.PreambleTokens()+s.HistoryTokens(), 10)
}

func TestUndoRemovesLatestNarration(t *testing.T) {
	s := newTestSession(t, 1000, 10)
	s.AppendPlayer("open the door")
	s.AppendNarration("The door creaks open.")

	removed, err := s.Undo()
	require.NoError(t, err)
	assert.Equal(t, chat.RoleNarrator, removed.Role)
	assert.Equal(t, "The door creaks open.", removed.Content)
	assert.Equal(t, 1, s.Len())

	require.NotNil(t, s.Undone())
	assert.Equal(t, removed, *s.Undone())
}

func TestUndoIsIdempotentSafe(t *testing.T) {
	s := newTestSession(t, 1000, 10)
	s.AppendPlayer("look around")
	s.AppendNarration("You are in a clearing.")

	_, err := s.Undo()
	require.NoError(t, err)

	before := s.DebugView()
	_, err = s.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)
	assert.Equal(t, before, s.DebugView(), "failed undo must not change the transcript")
}

func TestUndoOnEmptyTranscript(t *testing.T) {
	s := newTestSession(t, 1000, 10)
	_, err := s.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestUndoThenReplace(t *testing.T) {
	s := newTestSession(t, 1000, 10)
	s.AppendPlayer("attack the troll")
	s.AppendNarration("The troll flattens you.")

	_, err := s.Undo()
	require.NoError(t, err)

	s.AppendNarration("The troll ducks, surprised, and drops its club.")
	view := s.DebugView()
	require.Len(t, view, 2)
	assert.Equal(t, chat.RoleNarrator, view[1].Role)
	assert.Equal(t, "The troll ducks, surprised, and drops its club.", view[1].Content)
}

func TestDebugViewIsACopy(t *testing.T) {
	s := newTestSession(t, 1000, 10)
	s.AppendPlayer("wave")
	view := s.DebugView()
	view[0].Content = "mutated"

	assert.Equal(t, "wave", s.DebugView()[0].Content)
}

func TestDebugViewOrder(t *testing.T) {
	s := newTestSession(t, 1000, 10)
	s.AppendPlayer("first")
	s.AppendNarration("second")
	s.AppendPlayer("third")

	view := s.DebugView()
	require.Len(t, view, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{view[0].Content, view[1].Content, view[2].Content})
	assert.Equal(t, []string{chat.RolePlayer, chat.RoleNarrator, chat.RolePlayer},
		[]string{view[0].Role, view[1].Role, view[2].Role})
}

func TestBuildPromptAppendsPlayerTurn(t *testing.T) {
	s := newTestSession(t, 1000, 10)
	msgs, err := s.BuildPrompt("go north")
	require.NoError(t, err)

	// Preamble (system + opening) plus the new turn.
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.RoleSystem, msgs[0].Role)
	assert.Equal(t, chat.RolePlayer, msgs[1].Role)
	assert.Equal(t, "go north", msgs[2].Content)

	require.Equal(t, 1, s.Len())
	assert.Equal(t, chat.RolePlayer, s.DebugView()[0].Role)
}

// A failed inference call leaves the triggering player turn in the
// transcript and appends no narration; that is the caller's contract, and
// the session state must make it natural.
func TestFailedCallLeavesPlayerTurnOnly(t *testing.T) {
	s := newTestSession(t, 1000, 10)
	_, err := s.BuildPrompt("pull the lever")
	require.NoError(t, err)

	// Caller got a timeout from the LLM and appended nothing.
	view := s.DebugView()
	require.Len(t, view, 1)
	assert.Equal(t, chat.RolePlayer, view[0].Role)
	assert.Equal(t, "pull the lever", view[0].Content)
}

func TestPreambleTokensDeterministic(t *testing.T) {
	scn := testScenario(100)
	counter := stubCounter{}

	a := New(scn, counter, testLogger())
	b := New(scn, counter, testLogger())
	assert.Equal(t, a.PreambleTokens(), b.PreambleTokens(),
		"same scenario text must yield the same preamble token count")
	assert.Greater(t, a.PreambleTokens(), 0)
}
