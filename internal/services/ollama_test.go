package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"superzork/pkg/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func streamLine(content string, done bool) []byte {
	line, _ := json.Marshal(map[string]interface{}{
		"message": map[string]string{"content": content},
		"done":    done,
	})
	return append(line, '\n')
}

func TestNewOllamaService(t *testing.T) {
	service := NewOllamaService("http://localhost:11434", testLogger())

	assert.Equal(t, "http://localhost:11434", service.baseURL)
	assert.NotNil(t, service.httpClient)
	assert.NotNil(t, service.streamClient)
}

func TestChatStreamYieldsChunksInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req struct {
			Model   string         `json:"model"`
			Stream  bool           `json:"stream"`
			Options map[string]any `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.True(t, req.Stream)
		assert.EqualValues(t, 4096, req.Options["num_ctx"])

		flusher := w.(http.Flusher)
		for _, c := range []string{"The ", "lamp ", "flickers."} {
			_, _ = w.Write(streamLine(c, false))
			flusher.Flush()
		}
		_, _ = w.Write(streamLine("", true))
	}))
	defer server.Close()

	service := NewOllamaService(server.URL, testLogger())
	chunks, err := service.ChatStream(context.Background(),
		[]chat.Message{{Role: chat.RolePlayer, Content: "look at lamp"}},
		Options{Model: "test-model", NumCtx: 4096, Temperature: 0.7})
	require.NoError(t, err)

	var got []string
	var done bool
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		if chunk.Content != "" {
			got = append(got, chunk.Content)
		}
		if chunk.Done {
			done = true
		}
	}

	assert.Equal(t, []string{"The ", "lamp ", "flickers."}, got)
	assert.True(t, done, "stream must terminate with a done chunk")
}

func TestChatStreamSkipsMalformedLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all\n"))
		_, _ = w.Write(streamLine("still here", false))
		_, _ = w.Write(streamLine("", true))
	}))
	defer server.Close()

	service := NewOllamaService(server.URL, testLogger())
	chunks, err := service.ChatStream(context.Background(), nil, Options{Model: "m"})
	require.NoError(t, err)

	var got []string
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		if chunk.Content != "" {
			got = append(got, chunk.Content)
		}
	}
	assert.Equal(t, []string{"still here"}, got)
}

func TestChatStreamNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	service := NewOllamaService(server.URL, testLogger())
	_, err := service.ChatStream(context.Background(), nil, Options{Model: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestChatStreamConnectionRefused(t *testing.T) {
	// A server that's already closed gives a reliably refused port.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	service := NewOllamaService(server.URL, testLogger())
	_, err := service.ChatStream(context.Background(), nil, Options{Model: "m"})
	assert.ErrorIs(t, err, ErrConnection)
}

func TestChatStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write(streamLine("first", false))
		flusher.Flush()
		<-release // hold the stream open until the client cancels
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	service := NewOllamaService(server.URL, testLogger())
	chunks, err := service.ChatStream(ctx, nil, Options{Model: "m"})
	require.NoError(t, err)

	first := <-chunks
	require.NoError(t, first.Err)
	assert.Equal(t, "first", first.Content)

	cancel()

	// After cancellation the channel must close without a done or error
	// chunk: the partial reply is simply abandoned.
	for chunk := range chunks {
		assert.False(t, chunk.Done, "cancelled stream must not report normal completion")
		assert.NoError(t, chunk.Err, "user cancellation is not an error chunk")
	}
}

func TestIsModelReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "phi4-mini"},
				{"name": "llama3"},
			},
		})
	}))
	defer server.Close()

	service := NewOllamaService(server.URL, testLogger())

	ready, err := service.isModelReady(context.Background(), "phi4-mini")
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = service.isModelReady(context.Background(), "no-such-model")
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestClassifyTransportError(t *testing.T) {
	assert.ErrorIs(t, classifyTransportError(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, classifyTransportError(timeoutError{}), ErrTimeout)
	assert.ErrorIs(t, classifyTransportError(assert.AnError), ErrConnection)
}

func TestPlayerMessage(t *testing.T) {
	assert.Contains(t, PlayerMessage(ErrTimeout), "timed out")
	assert.Contains(t, PlayerMessage(fmt.Errorf("chat stream: %w", ErrTimeout)), "timed out")
	assert.Contains(t, PlayerMessage(ErrConnection), "Could not reach Ollama")
	assert.Contains(t, PlayerMessage(assert.AnError), assert.AnError.Error())

	// An interrupt is reported by the caller, not as a stream failure.
	assert.Empty(t, PlayerMessage(context.Canceled))
}

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
