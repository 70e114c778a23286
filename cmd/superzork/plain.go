package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"superzork/internal/services"
	"superzork/pkg/chat"
	"superzork/pkg/session"
)

// runPlain is the line-oriented game loop for terminals where the
// full-screen UI is unwanted (pipes, screen readers, minimal shells).
func runPlain(ctx context.Context, sess *session.Session, svc services.LLMService) error {
	printWelcome()

	fmt.Println("\nInitializing the adventure...")
	opening, err := streamToTerminal(ctx, sess, svc, sess.OpeningPrompt())
	if err != nil {
		reportStreamError(err)
		if ctx.Err() != nil {
			return nil
		}
	} else if opening != "" {
		sess.AppendNarration(opening)
	}
	fmt.Println()

	reader := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !reader.Scan() {
			fmt.Println("\nInput ended. Farewell, adventurer!")
			return reader.Err()
		}
		input := strings.TrimSpace(reader.Text())
		if input == "" {
			continue
		}

		switch session.ParseCommand(input) {
		case session.CommandQuit:
			fmt.Println("\nThanks for playing!")
			return nil

		case session.CommandUndo:
			if _, err := sess.Undo(); err != nil {
				fmt.Println("Nothing to undo.")
				continue
			}
			fmt.Println("\n--- Story Modification Mode ---")
			fmt.Println("How would you like to change what just happened?")
			fmt.Print("(story update)> ")
			if !reader.Scan() {
				return reader.Err()
			}
			replacement := strings.TrimSpace(reader.Text())
			if replacement == "" {
				fmt.Println("No changes made.")
				continue
			}
			sess.AppendNarration(replacement)
			fmt.Printf("\nStory updated: %s\n", replacement)

		case session.CommandDebug:
			printDebugView(sess)

		case session.CommandHelp:
			fmt.Println("\n" + session.HelpText)

		default:
			msgs, err := sess.BuildPrompt(input)
			if err != nil {
				if errors.Is(err, session.ErrOversizedInput) {
					fmt.Println("That input is too long to fit the story's token budget. Please shorten it and try again.")
					continue
				}
				return err
			}

			reply, err := streamToTerminal(ctx, sess, svc, msgs)
			if err != nil {
				reportStreamError(err)
				if ctx.Err() != nil {
					fmt.Println("\nGame interrupted. The world fades into darkness...")
					return nil
				}
				// The player turn stays in the transcript so retrying the
				// same action reuses the context; no narration is appended.
				continue
			}
			if reply != "" {
				sess.AppendNarration(reply)
			}
			fmt.Println()
		}
	}
}

// streamToTerminal sends the prompt and prints chunks as they arrive,
// returning the assembled reply. A cancelled context or stream error
// discards the partial reply.
func streamToTerminal(ctx context.Context, sess *session.Session, svc services.LLMService, msgs []chat.Message) (string, error) {
	scn := sess.Scenario()
	chunks, err := svc.ChatStream(ctx, msgs, services.Options{
		Model:       scn.Model,
		NumCtx:      scn.NumTokens,
		Temperature: scn.Temperature,
	})
	if err != nil {
		return "", err
	}

	var reply strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Content != "" {
			fmt.Print(chunk.Content)
			reply.WriteString(chunk.Content)
		}
		if chunk.Done {
			fmt.Println()
			return reply.String(), nil
		}
	}
	// Channel closed without a done marker: interrupted mid-stream.
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	fmt.Println()
	return reply.String(), nil
}

func reportStreamError(err error) {
	if msg := services.PlayerMessage(err); msg != "" {
		fmt.Println("\n" + msg)
	}
}

func printWelcome() {
	line := strings.Repeat("=", 60)
	fmt.Println(line)
	fmt.Println("    SUPERZORK: AI-POWERED TEXT ADVENTURE")
	fmt.Println(line)
	fmt.Println("Type your actions naturally. The narrator responds dynamically.")
	fmt.Println("Commands: 'quit' to exit, 'undo' to modify story, 'debug' for history, 'help' for help")
	fmt.Println(line)
}

func printDebugView(sess *session.Session) {
	fmt.Println("\n--- Debug: Conversation History ---")
	for i, turn := range sess.DebugView() {
		fmt.Printf("%d. [%s] (%d tokens): %s\n", i+1, strings.ToUpper(turn.Role), turn.Tokens, turn.Preview(100))
	}
	if u := sess.Undone(); u != nil {
		fmt.Printf("Undone narration (%d tokens): %s\n", u.Tokens, u.Preview(100))
	}
	fmt.Printf("Preamble: %d tokens. History: %d of %d budget.\n",
		sess.PreambleTokens(), sess.HistoryTokens(), sess.Scenario().NumTokens)
	fmt.Println("--- End Debug ---")
}
