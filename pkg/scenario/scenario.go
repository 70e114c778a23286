// Package scenario models the YAML story files that configure a game:
// which model to run, where Ollama lives, the token budget, and the
// story/character cards that make up the fixed prompt preamble.
package scenario

import (
	"bytes"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel       = "phi4-mini"
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultNumTokens   = 4096
	DefaultTemperature = 0.7
)

// Scenario is the immutable configuration for one adventure. It is loaded
// once at startup and never mutated.
type Scenario struct {
	Model          string   `yaml:"model"`
	OllamaURL      string   `yaml:"ollama_url"`
	NumTokens      int      `yaml:"num_tokens"`
	Temperature    float64  `yaml:"temperature"`
	StoryCard      string   `yaml:"story_card"`
	PlayerCard     string   `yaml:"player_card"`
	CompanionCards []string `yaml:"companion_cards"`
}

// ConfigError reports a missing or malformed scenario field. It is fatal at
// startup: no inference call is attempted with a broken scenario.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scenario field %q: %s", e.Field, e.Reason)
}

// Load reads and validates a scenario file. Defaults are applied for the
// connection settings before validation, so a minimal file needs only the
// story and character cards plus a model.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}

	s.applyDefaults(HasTemperature(data))
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// HasTemperature reports whether the raw story document sets the
// temperature key. An explicit 0.0 is legal (greedy decoding) and must not
// be confused with an absent key, so presence is decided on the document,
// not the decoded value.
func HasTemperature(data []byte) bool {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false
	}
	v, ok := raw["temperature"]
	return ok && v != nil
}

func (s *Scenario) applyDefaults(temperatureSet bool) {
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.OllamaURL == "" {
		s.OllamaURL = DefaultOllamaURL
	}
	if s.NumTokens == 0 {
		s.NumTokens = DefaultNumTokens
	}
	if !temperatureSet {
		s.Temperature = DefaultTemperature
	}
}

// Validate checks the scenario against the field contract. The first
// offending field is reported; the caller surfaces it before any inference
// call is attempted.
func (s *Scenario) Validate() error {
	if s.StoryCard == "" {
		return &ConfigError{Field: "story_card", Reason: "is required"}
	}
	if s.PlayerCard == "" {
		return &ConfigError{Field: "player_card", Reason: "is required"}
	}
	if s.Model == "" {
		return &ConfigError{Field: "model", Reason: "is required"}
	}
	if s.NumTokens <= 0 {
		return &ConfigError{Field: "num_tokens", Reason: "must be a positive integer"}
	}
	u, err := url.Parse(s.OllamaURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "ollama_url", Reason: "must be an http(s) URL"}
	}
	if s.Temperature < 0 {
		return &ConfigError{Field: "temperature", Reason: "cannot be negative"}
	}
	return nil
}

// Warnings returns non-fatal advisories about unusual but legal values.
func (s *Scenario) Warnings() []string {
	var w []string
	if s.Temperature > 2.0 {
		w = append(w, fmt.Sprintf("temperature %.2f is outside the recommended range 0.0-2.0", s.Temperature))
	}
	if s.NumTokens < 512 {
		w = append(w, fmt.Sprintf("num_tokens %d leaves very little room for conversation history", s.NumTokens))
	}
	if len(s.CompanionCards) == 0 {
		w = append(w, "no companion_cards defined; the adventure will be a solo one")
	}
	return w
}
