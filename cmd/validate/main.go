package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"superzork/pkg/scenario"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <story.yaml> [more.yaml ...]\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		v := &storyValidator{}
		if err := v.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		for _, w := range v.warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		fmt.Printf("%s is valid!\n", filename)
	}
	if failed {
		os.Exit(1)
	}
}

type storyValidator struct {
	warnings []string
}

var snakeCaseName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (v *storyValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".yaml") {
		return fmt.Errorf("story file must have .yaml extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ".yaml")
	if !snakeCaseName.MatchString(nameWithoutExt) {
		return fmt.Errorf("story filename %q must be lowercase snake_case (e.g. my_story.yaml, not My-Story.yaml)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	// Strict decoding catches misspelled field names that the game's more
	// forgiving loader would silently drop.
	var s scenario.Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return fmt.Errorf("file %s failed strict YAML decoding: %w", filename, err)
	}

	v.collectWarnings(&s)

	// The loader applies defaults before validating, so validate what the
	// game would actually run with.
	withDefaults := s
	applyDisplayDefaults(&withDefaults, scenario.HasTemperature(data))
	return withDefaults.Validate()
}

func (v *storyValidator) collectWarnings(s *scenario.Scenario) {
	if s.Model == "" {
		v.warnings = append(v.warnings, fmt.Sprintf("model not set; the game will default to %s", scenario.DefaultModel))
	}
	if s.OllamaURL == "" {
		v.warnings = append(v.warnings, fmt.Sprintf("ollama_url not set; the game will default to %s", scenario.DefaultOllamaURL))
	}
	if s.NumTokens == 0 {
		v.warnings = append(v.warnings, fmt.Sprintf("num_tokens not set; the game will default to %d", scenario.DefaultNumTokens))
	}
	v.warnings = append(v.warnings, s.Warnings()...)
}

func applyDisplayDefaults(s *scenario.Scenario, temperatureSet bool) {
	if s.Model == "" {
		s.Model = scenario.DefaultModel
	}
	if s.OllamaURL == "" {
		s.OllamaURL = scenario.DefaultOllamaURL
	}
	if s.NumTokens == 0 {
		s.NumTokens = scenario.DefaultNumTokens
	}
	if !temperatureSet {
		s.Temperature = scenario.DefaultTemperature
	}
}
