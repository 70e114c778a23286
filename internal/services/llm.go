package services

import (
	"context"
	"errors"
	"fmt"

	"superzork/pkg/chat"
)

// ErrConnection indicates the inference endpoint could not be reached.
// Recoverable: the caller reports it and suggests a retry.
var ErrConnection = errors.New("could not connect to the inference endpoint")

// ErrTimeout indicates no data arrived from the endpoint within the bound.
// Recoverable in the same way as ErrConnection.
var ErrTimeout = errors.New("inference request timed out")

// PlayerMessage translates a failed inference call into the advice shown to
// the player. Cancellation returns "" because an interrupt is the player's
// own doing and the caller decides how to frame it.
func PlayerMessage(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "The request timed out. The narrator is taking longer than expected; try again, or try a simpler action."
	case errors.Is(err, ErrConnection):
		return "Could not reach Ollama. Make sure it's running, then try again."
	case errors.Is(err, context.Canceled):
		return ""
	default:
		return fmt.Sprintf("The narrator stumbled: %v. Please try again.", err)
	}
}

// StreamChunk is one piece of a streamed model reply. A chunk with Err set
// terminates the stream abnormally; a chunk with Done set terminates it
// normally. Content may accompany Done on the final chunk.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// Options are the per-call generation parameters taken from the scenario.
type Options struct {
	Model       string
	NumCtx      int
	Temperature float64
}

// LLMService is the inference client the game depends on. Implementations
// must close the chunk channel after sending a Done or Err chunk, and must
// stop producing promptly when ctx is cancelled.
type LLMService interface {
	// InitModel prepares the model for use, pulling it if necessary.
	InitModel(ctx context.Context, modelName string) error

	// ChatStream sends the assembled prompt and yields the reply
	// incrementally. Chunks arrive strictly in order.
	ChatStream(ctx context.Context, messages []chat.Message, opts Options) (<-chan StreamChunk, error)
}
