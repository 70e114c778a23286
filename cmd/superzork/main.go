package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"superzork/internal/config"
	"superzork/internal/logger"
	"superzork/internal/services"
	"superzork/pkg/scenario"
	"superzork/pkg/session"
	"superzork/pkg/tokens"
)

const logFileName = "superzork.log"

func main() {
	var (
		storyFile  string
		listOnly   bool
		plainMode  bool
		storiesDir string
	)
	pflag.StringVarP(&storyFile, "story", "s", "", "path to the YAML story configuration file")
	pflag.BoolVar(&listOnly, "list", false, "list available stories and exit")
	pflag.BoolVar(&plainMode, "plain", false, "run the line-oriented terminal mode instead of the full-screen UI")
	pflag.StringVar(&storiesDir, "stories", "stories", "directory to scan for story files")
	pflag.Parse()

	if listOnly {
		listStories(storiesDir)
		return
	}

	if storyFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: superzork -s <story.yaml> [--plain]")
		fmt.Fprintln(os.Stderr, "       superzork --list")
		os.Exit(1)
	}

	cfg := config.Load()

	scn, err := scenario.Load(storyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.OllamaURL != "" {
		scn.OllamaURL = cfg.OllamaURL
	}
	for _, w := range scn.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	// The full-screen UI owns the terminal, so logs go to a file there.
	logSink := os.Stderr
	if !plainMode {
		f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			defer func() {
				_ = f.Close() // Ignore error in defer
			}()
			logSink = f
		}
	}
	log := logger.Setup(cfg, logSink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := services.NewOllamaService(scn.OllamaURL, log)
	fmt.Println("Connecting to Ollama...")
	if err := svc.InitModel(ctx, scn.Model); err != nil {
		fmt.Fprintf(os.Stderr, "Could not prepare model %q: %v\n", scn.Model, err)
		fmt.Fprintln(os.Stderr, "Make sure Ollama is running and reachable at", scn.OllamaURL)
		os.Exit(1)
	}

	sess := session.New(scn, tokens.ForModel(scn.Model), log)
	sessLog := logger.WithSessionID(log, sess.ID.String())

	if plainMode {
		if err := runPlain(ctx, sess, svc); err != nil {
			fmt.Fprintf(os.Stderr, "An unexpected error occurred: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(NewGameUI(sess, svc, sessLog),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// listStories prints the story files found in dir, title-cased from their
// file names the way the launcher always has.
func listStories(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil || len(matches) == 0 {
		fmt.Printf("No story files found in %s.\n", dir)
		return
	}
	sort.Strings(matches)

	titler := cases.Title(language.English)
	fmt.Println("\nAvailable Adventures:")
	fmt.Println(strings.Repeat("=", 50))
	for i, m := range matches {
		stem := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
		name := titler.String(strings.ReplaceAll(stem, "_", " "))
		fmt.Printf("%d. %s\n   File: %s\n\n", i+1, name, m)
	}
}
