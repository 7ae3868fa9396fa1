package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"hybrid-retrieval/internal/domain"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string                 `json:"model"`
	Messages  []chatMessage          `json:"messages"`
	Stream    bool                   `json:"stream"`
	KeepAlive int                    `json:"keep_alive"`
	Options   map[string]interface{} `json:"options,omitempty"`
	Think     interface{}            `json:"think,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// OllamaGenerator streams chat completions from Ollama's chat endpoint.
type OllamaGenerator struct {
	BaseURL string
	Model   string
	// NumCtx is the context window requested from the model.
	NumCtx int
	Client *http.Client
	logger *slog.Logger
}

// NewOllamaGenerator constructs a generator. The client must not carry a total
// timeout; the answer stream enforces an idle timeout through ctx instead.
func NewOllamaGenerator(baseURL, model string, numCtx int, logger *slog.Logger, client *http.Client) *OllamaGenerator {
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaGenerator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		NumCtx:  numCtx,
		Client:  client,
		logger:  logger,
	}
}

// ChatStream starts a streaming chat. The chunk channel is closed when the model
// finishes; at most one error is delivered on the error channel, which is closed last.
func (g *OllamaGenerator) ChatStream(ctx context.Context, messages []domain.Message, maxTokens int) (<-chan domain.LLMStreamChunk, <-chan error, error) {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	payload, err := json.Marshal(chatRequest{
		Model:     g.Model,
		Messages:  msgs,
		Stream:    true,
		KeepAlive: -1,
		Options:   g.buildOptions(maxTokens),
		Think:     g.getThinkParam(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to call generation endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, nil, fmt.Errorf("generation endpoint returned %d: %s", resp.StatusCode, truncateString(string(body), 200))
	}

	chunks := make(chan domain.LLMStreamChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(chunks)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var part chatResponse
			if err := json.Unmarshal(line, &part); err != nil {
				errs <- fmt.Errorf("failed to decode stream chunk: %w", err)
				return
			}
			if part.Error != "" {
				errs <- fmt.Errorf("generation error: %s", part.Error)
				return
			}
			select {
			case <-ctx.Done():
				return
			case chunks <- domain.LLMStreamChunk{Response: part.Message.Content, Done: part.Done}:
			}
			if part.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("generation stream interrupted: %w", err)
		}
	}()

	g.logger.DebugContext(ctx, "generation_stream_started",
		slog.String("model", g.Model),
		slog.Int("message_count", len(messages)),
		slog.Int("max_tokens", maxTokens))

	return chunks, errs, nil
}

// buildOptions returns sampling options tuned per model family.
func (g *OllamaGenerator) buildOptions(maxTokens int) map[string]interface{} {
	opts := map[string]interface{}{
		"temperature": 0.2,
		"top_p":       0.9,
	}
	if g.NumCtx > 0 {
		opts["num_ctx"] = g.NumCtx
	}
	if strings.Contains(strings.ToLower(g.Model), "gemma") {
		opts["repeat_penalty"] = 1.15
	}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	return opts
}

// getThinkParam disables reasoning output on models that emit it by default.
func (g *OllamaGenerator) getThinkParam() interface{} {
	if strings.HasPrefix(strings.ToLower(g.Model), "qwen3") {
		return false
	}
	return nil
}

// Version returns the wrapped model name.
func (g *OllamaGenerator) Version() string {
	return g.Model
}

var _ domain.LLMClient = (*OllamaGenerator)(nil)
