package session

import "strings"

// Command is a special player input handled by the game itself rather than
// forwarded to the narrator.
type Command int

const (
	CommandNone Command = iota // ordinary player input
	CommandQuit
	CommandUndo
	CommandDebug
	CommandHelp
)

// ParseCommand classifies a line of player input. Matching is
// case-insensitive and ignores surrounding whitespace; anything that isn't
// an exact command word is an ordinary turn.
func ParseCommand(input string) Command {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "quit":
		return CommandQuit
	case "undo":
		return CommandUndo
	case "debug":
		return CommandDebug
	case "help":
		return CommandHelp
	}
	return CommandNone
}

// HelpText is the static text shown for the help command.
const HelpText = `Available Commands:
  quit  - Exit the game
  undo  - Rewrite the last narration
  debug - Show conversation history
  help  - Show this help message

Gameplay Tips:
  Type actions naturally: 'go north', 'examine door', 'take lamp'
  Be creative! The narrator responds to unexpected actions.
  Classic adventure commands work: look, inventory, use, etc.
  Pay attention to descriptions for clues and hidden details.`
