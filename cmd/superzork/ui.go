package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"superzork/internal/logger"
	"superzork/internal/services"
	"superzork/pkg/chat"
	"superzork/pkg/session"
)

const (
	NarratorName    = "Narrator"
	PlaceHolderText = "What do you do?"
	UndoPlaceHolder = "How should the story go instead?"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")). // brass
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// GameUI is the BubbleTea model that runs the full-screen game.
// https://github.com/charmbracelet/bubbletea
type GameUI struct {
	sess   *session.Session
	svc    services.LLMService
	logger *slog.Logger

	viewport viewport.Model
	textarea textarea.Model
	ready    bool
	width    int
	height   int

	// Streaming state. partial accumulates the narration being streamed;
	// it only becomes a transcript turn when the stream finishes cleanly.
	// A plain string, not a strings.Builder: BubbleTea copies the model on
	// every update and Builder forbids copies.
	loading      bool
	partial      string
	chunks       <-chan services.StreamChunk
	cancelStream context.CancelFunc

	// awaitingUndo means the next input replaces the narration just removed.
	awaitingUndo bool

	// notice is a transient out-of-story message: errors, help, debug view.
	notice string

	progressTick int
}

type streamStartedMsg struct {
	chunks <-chan services.StreamChunk
	cancel context.CancelFunc
	err    error
}

type streamChunkMsg struct {
	chunk services.StreamChunk
	ok    bool
}

type progressTickMsg struct{}

func NewGameUI(sess *session.Session, svc services.LLMService, logger *slog.Logger) GameUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render("> ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	vp := viewport.New(50, 20)
	vp.MouseWheelEnabled = true

	return GameUI{
		sess:     sess,
		svc:      svc,
		logger:   logger,
		textarea: ta,
		viewport: vp,
		// The opening narration starts streaming from Init.
		loading: true,
	}
}

func (m GameUI) Init() tea.Cmd {
	// Kick off the scene-setting narration before the first input.
	return tea.Batch(m.startStream(m.sess.OpeningPrompt()), progressTick())
}

// startStream opens a streamed inference call as a BubbleTea command.
func (m GameUI) startStream(msgs []chat.Message) tea.Cmd {
	scn := m.sess.Scenario()
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		chunks, err := m.svc.ChatStream(ctx, msgs, services.Options{
			Model:       scn.Model,
			NumCtx:      scn.NumTokens,
			Temperature: scn.Temperature,
		})
		if err != nil {
			cancel()
			return streamStartedMsg{err: err}
		}
		return streamStartedMsg{chunks: chunks, cancel: cancel}
	}
}

// waitForChunk receives the next chunk from the active stream.
func waitForChunk(chunks <-chan services.StreamChunk) tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-chunks
		return streamChunkMsg{chunk: chunk, ok: ok}
	}
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

func (m GameUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.width - 4
		m.viewport.Height = m.height - 6
		m.textarea.SetWidth(m.width - 6)
		m.ready = true
		m.writeContent()

	case streamStartedMsg:
		if msg.err != nil {
			m.failStream(msg.err)
			m.writeContent()
			return m, nil
		}
		m.loading = true
		m.chunks = msg.chunks
		m.cancelStream = msg.cancel
		return m, tea.Batch(waitForChunk(m.chunks), progressTick())

	case streamChunkMsg:
		if !msg.ok {
			// Channel closed without a done marker: cancelled mid-stream.
			// The partial narration is discarded, not appended.
			m.resetStream()
			m.notice = noticeStyle.Render("Narration interrupted; nothing was added to the story.")
			m.writeContent()
			return m, nil
		}
		if msg.chunk.Err != nil {
			m.failStream(msg.chunk.Err)
			m.writeContent()
			return m, nil
		}
		if msg.chunk.Content != "" {
			m.partial += msg.chunk.Content
		}
		if msg.chunk.Done {
			if reply := m.partial; reply != "" {
				m.sess.AppendNarration(reply)
			}
			m.resetStream()
			m.writeContent()
			return m, nil
		}
		m.writeContent()
		return m, waitForChunk(m.chunks)

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeContent()
			return m, progressTick()
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.loading {
				// Stop reading further chunks; no partial turn is kept.
				if m.cancelStream != nil {
					m.cancelStream()
				}
				return m, nil
			}
			if m.awaitingUndo {
				m.awaitingUndo = false
				m.textarea.Placeholder = PlaceHolderText
				m.notice = noticeStyle.Render("No replacement given; the narration stays removed.")
				m.writeContent()
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m.handleInput(input)
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

// handleInput dispatches a line of input: commands are handled in place,
// anything else becomes a player turn.
func (m GameUI) handleInput(input string) (tea.Model, tea.Cmd) {
	m.notice = ""

	if m.awaitingUndo {
		m.awaitingUndo = false
		m.textarea.Placeholder = PlaceHolderText
		m.sess.AppendNarration(input)
		m.notice = noticeStyle.Render("Story updated.")
		m.writeContent()
		return m, nil
	}

	switch session.ParseCommand(input) {
	case session.CommandQuit:
		return m, tea.Quit

	case session.CommandUndo:
		if _, err := m.sess.Undo(); err != nil {
			m.notice = noticeStyle.Render("Nothing to undo.")
		} else {
			m.awaitingUndo = true
			m.textarea.Placeholder = UndoPlaceHolder
			m.notice = noticeStyle.Render("Last narration removed. Describe what happens instead.")
		}
		m.writeContent()
		return m, nil

	case session.CommandDebug:
		m.notice = m.renderDebugView()
		m.writeContent()
		return m, nil

	case session.CommandHelp:
		m.notice = titleStyle.Render("Help") + "\n" + session.HelpText
		m.writeContent()
		return m, nil
	}

	msgs, err := m.sess.BuildPrompt(input)
	if err != nil {
		if errors.Is(err, session.ErrOversizedInput) {
			m.notice = errorStyle.Render("That input is too long for the token budget. Please shorten it.")
		} else {
			m.notice = errorStyle.Render("Error: " + err.Error())
		}
		m.writeContent()
		return m, nil
	}

	m.loading = true
	m.progressTick = 0
	m.writeContent()
	return m, tea.Batch(m.startStream(msgs), progressTick())
}

// failStream surfaces a recoverable inference failure. The player's turn
// stays in the transcript so a retry reuses it; no narration is appended.
func (m *GameUI) failStream(err error) {
	logger.WithError(m.logger, err).Error("inference call failed")
	if msg := services.PlayerMessage(err); msg != "" {
		m.notice = errorStyle.Render(msg)
	}
	m.resetStream()
}

func (m *GameUI) resetStream() {
	m.loading = false
	m.partial = ""
	m.chunks = nil
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
}

// writeContent rebuilds the viewport from the transcript plus any narration
// currently streaming in.
func (m *GameUI) writeContent() {
	if !m.ready {
		return
	}
	width := m.viewport.Width - 2
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("SUPERZORK") + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	for _, turn := range m.sess.DebugView() {
		switch turn.Role {
		case chat.RoleNarrator:
			prefix := narratorStyle.Render(NarratorName + ": ")
			content.WriteString(prefix + wordwrap.String(turn.Content, width-len(NarratorName)-2) + "\n\n")
		case chat.RolePlayer:
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(turn.Content, width-5) + "\n\n")
		}
	}

	if m.loading {
		if m.partial != "" {
			prefix := narratorStyle.Render(NarratorName + ": ")
			content.WriteString(prefix + wordwrap.String(m.partial, width-len(NarratorName)-2) + "\n\n")
		} else {
			content.WriteString(m.renderProgressBar(width) + "\n")
		}
	}

	if m.notice != "" {
		content.WriteString(m.notice + "\n")
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

func (m GameUI) renderDebugView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Conversation History") + "\n")
	for i, turn := range m.sess.DebugView() {
		sb.WriteString(fmt.Sprintf("%d. [%s] (%d tokens): %s\n", i+1, strings.ToUpper(turn.Role), turn.Tokens, turn.Preview(100)))
	}
	if u := m.sess.Undone(); u != nil {
		sb.WriteString(fmt.Sprintf("Undone narration (%d tokens): %s\n", u.Tokens, u.Preview(100)))
	}
	sb.WriteString(fmt.Sprintf("Preamble: %d tokens. History: %d of %d budget.",
		m.sess.PreambleTokens(), m.sess.HistoryTokens(), m.sess.Scenario().NumTokens))
	return sb.String()
}

func (m GameUI) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	status := statusStyle.Render(fmt.Sprintf(" %s · tokens %d/%d · quit · undo · debug · help",
		m.sess.Scenario().Model,
		m.sess.PreambleTokens()+m.sess.HistoryTokens(),
		m.sess.Scenario().NumTokens))

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		separatorStyle.Render(strings.Repeat("─", m.width-4)),
		m.textarea.View(),
		status,
	)
}

// renderProgressBar draws the animated bar shown while waiting for the
// first chunk of a narration.
func (m GameUI) renderProgressBar(width int) string {
	if width > 60 {
		width = 60
	} else if width < 10 {
		width = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * width) / totalFrames

	var bar strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i < filled:
			bar.WriteString("█")
		case i == filled && frame%4 < 2:
			bar.WriteString("▓")
		default:
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}
