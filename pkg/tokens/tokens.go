// Package tokens provides approximate token accounting for prompt budgeting.
// Token counts here are estimates used to trim conversation history; they are
// intentionally not a contract with any particular model's tokenizer.
package tokens

import (
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates the number of model tokens in a piece of text.
// Implementations must be deterministic: the same text always yields the
// same count.
type Counter interface {
	Count(text string) int
}

// Estimator is a tokenizer-free heuristic counter. English prose averages
// roughly 1.3 tokens per word, so the estimate is word count plus a third,
// with standalone punctuation runs counted as words.
type Estimator struct{}

// NewEstimator returns the default heuristic counter.
func NewEstimator() Estimator {
	return Estimator{}
}

func (Estimator) Count(text string) int {
	words := 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	if words == 0 {
		return 0
	}
	return words + words/3
}

// Tiktoken counts tokens with an exact BPE encoding when one is known for
// the model. Local models served by Ollama generally aren't in tiktoken's
// model table, so ForModel falls back to cl100k_base.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func (t Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// ForModel returns the most precise counter available for the model name.
// A tiktoken encoding is preferred; the heuristic estimator is the fallback
// when no encoding data is available (for example, offline builds).
func ForModel(model string) Counter {
	// Ollama model names carry tags ("phi4-mini:latest") that tiktoken
	// doesn't know about.
	base := model
	if i := strings.IndexByte(base, ':'); i >= 0 {
		base = base[:i]
	}
	if enc, err := tiktoken.EncodingForModel(base); err == nil {
		return Tiktoken{enc: enc}
	}
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		return Tiktoken{enc: enc}
	}
	return NewEstimator()
}
