package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"superzork/pkg/chat"
)

const (
	// connectTimeout bounds the TCP dial to the Ollama server.
	connectTimeout = 10 * time.Second
	// readTimeout bounds the wait for the next stream chunk. Generation can
	// be slow on modest hardware, so this is generous.
	readTimeout = 120 * time.Second
)

// OllamaService is the inference client for a locally hosted Ollama server.
type OllamaService struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; a whole streamed generation can
	// legitimately take minutes. Staleness is caught by a per-chunk
	// watchdog instead.
	streamClient *http.Client
	logger       *slog.Logger
}

// NewOllamaService creates a new Ollama service instance.
func NewOllamaService(baseURL string, logger *slog.Logger) *OllamaService {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{DialContext: dialer.DialContext}
	return &OllamaService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
		logger: logger,
	}
}

// InitModel checks that the model is available, pulling it if necessary.
func (s *OllamaService) InitModel(ctx context.Context, modelName string) error {
	s.logger.Info("Initializing LLM model", "model", modelName)

	if err := s.waitForOllamaReady(ctx); err != nil {
		return fmt.Errorf("ollama service is not ready: %w", err)
	}

	ready, err := s.isModelReady(ctx, modelName)
	if err != nil {
		return fmt.Errorf("failed to check model readiness: %w", err)
	}

	if !ready {
		s.logger.Info("Model not found, pulling it", "model", modelName)
		if err := s.pullModel(ctx, modelName); err != nil {
			return fmt.Errorf("failed to pull model: %w", err)
		}
		s.logger.Info("Model pulled successfully", "model", modelName)
	} else {
		s.logger.Info("Model already available", "model", modelName)
	}

	return nil
}

// ollamaStreamLine is one newline-delimited JSON object from /api/chat.
type ollamaStreamLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// ChatStream sends the prompt to Ollama's chat endpoint and yields the reply
// chunk by chunk. The returned channel is closed after a Done or Err chunk.
// Cancelling ctx stops the stream without a final chunk.
func (s *OllamaService) ChatStream(ctx context.Context, messages []chat.Message, opts Options) (<-chan StreamChunk, error) {
	reqBody := map[string]interface{}{
		"model":    opts.Model,
		"messages": messages,
		"stream":   true,
		"options": map[string]interface{}{
			"num_ctx":     opts.NumCtx,
			"temperature": opts.Temperature,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := s.baseURL + "/api/chat"
	s.logger.Debug("Making Ollama chat request",
		"url", url,
		"model", opts.Model,
		"message_count", len(messages))

	// sctx is cancelled by the chunk watchdog; ctx cancellation still wins.
	sctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(sctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		_ = resp.Body.Close()
		cancel()
		s.logger.Error("Ollama API returned error",
			"status_code", resp.StatusCode,
			"response_body", body.String())
		return nil, fmt.Errorf("API request failed with status: %d", resp.StatusCode)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		defer func() {
			_ = resp.Body.Close() // Ignore error in defer
		}()

		watchdog := time.AfterFunc(readTimeout, cancel)
		defer watchdog.Stop()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			watchdog.Reset(readTimeout)
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk ollamaStreamLine
			if err := json.Unmarshal(line, &chunk); err != nil {
				// Partial or malformed lines are skipped, matching
				// Ollama's own client behavior.
				continue
			}

			if chunk.Message.Content != "" {
				select {
				case out <- StreamChunk{Content: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				select {
				case out <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				// User cancellation: end silently, no partial result.
				return
			}
			if sctx.Err() != nil {
				// The watchdog fired: no chunk within the read bound.
				out <- StreamChunk{Err: fmt.Errorf("%w: no data for %s", ErrTimeout, readTimeout)}
				return
			}
			out <- StreamChunk{Err: classifyTransportError(err)}
			return
		}

		// Stream ended without a done marker. Treat as normal termination.
		select {
		case out <- StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// classifyTransportError maps low-level transport failures onto the two
// recoverable error kinds the game reports to the player.
func classifyTransportError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// isModelReady checks if the specified model is available.
func (s *OllamaService) isModelReady(ctx context.Context, modelName string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("API request failed with status: %d", resp.StatusCode)
	}

	var tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	for _, model := range tagsResp.Models {
		if model.Name == modelName {
			return true, nil
		}
	}

	return false, nil
}

// pullModel pulls a model from the Ollama registry.
func (s *OllamaService) pullModel(ctx context.Context, modelName string) error {
	reqBody := map[string]string{
		"name": modelName,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/api/pull", bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	// Use a longer timeout for pulling models as it can take a while
	client := &http.Client{
		Timeout: 10 * time.Minute,
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status: %d", resp.StatusCode)
	}

	return nil
}

// waitForOllamaReady waits for the Ollama server to respond, with retries.
func (s *OllamaService) waitForOllamaReady(ctx context.Context) error {
	maxRetries := 5
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/api/tags", nil)
		if err != nil {
			s.logger.Debug("Failed to create request for readiness check", "error", err, "attempt", i+1)
			time.Sleep(retryDelay)
			continue
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.Debug("Ollama not ready yet", "error", err, "attempt", i+1)
			time.Sleep(retryDelay)
			continue
		}
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			s.logger.Info("Ollama service is ready")
			return nil
		}

		s.logger.Debug("Ollama returned non-200 status", "status", resp.StatusCode, "attempt", i+1)
		time.Sleep(retryDelay)
	}

	return fmt.Errorf("ollama service did not become ready after %d attempts", maxRetries)
}
