package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Anthropic struct {
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
	Retries   int
	Log       *zap.Logger

	mu      sync.Mutex
	baseURL string
}

func NewAnthropic(baseURL, apiKey string) *Anthropic {
	return &Anthropic{baseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey}
}

func (a *Anthropic) BaseURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseURL
}

func (a *Anthropic) SetBaseURL(u string) {
	a.mu.Lock()
	a.baseURL = strings.TrimRight(u, "/")
	a.mu.Unlock()
}

func (a *Anthropic) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL()+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return req, nil
}

func (a *Anthropic) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	var sb strings.Builder
	err := a.ChatStream(ctx, model, messages, func(d StreamDelta) {
		sb.WriteString(d.Content)
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (a *Anthropic) ChatStream(ctx context.Context, model string, messages []Message, onDelta func(StreamDelta)) error {
	// system entries (prompt and hints) are folded into the top-level system field
	var system []string
	var msgs []map[string]any
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		// consecutive turns of the same role are merged, the API rejects them
		if n := len(msgs); n > 0 && msgs[n-1]["role"] == m.Role {
			msgs[n-1]["content"] = msgs[n-1]["content"].(string) + "\n\n" + m.Content
			continue
		}
		msgs = append(msgs, map[string]any{"role": m.Role, "content": m.Content})
	}

	maxTokens := a.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"stream":     true,
		"messages":   msgs,
	}
	if len(system) > 0 {
		body["system"] = strings.Join(system, "\n\n")
	}

	payload, _ := json.Marshal(body)
	req, err := a.newRequest(ctx, http.MethodPost, "/v1/messages", payload)
	if err != nil {
		return err
	}

	resp, err := doWithRetry(&http.Client{Timeout: a.Timeout}, req, payload, a.Log, a.Retries)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	chunkCount := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		chunkCount++

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				onDelta(StreamDelta{Content: event.Delta.Text})
			}
		case "error":
			return fmt.Errorf("anthropic stream error: %s", event.Error.Message)
		case "message_stop":
			nopIfNil(a.Log).Debug("stream done", zap.Int("chunks", chunkCount))
			onDelta(StreamDelta{Done: true})
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error after %d chunks: %w", chunkCount, err)
	}
	return fmt.Errorf("stream ended without message_stop after %d chunks", chunkCount)
}

func (a *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	req, err := a.newRequest(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := doWithRetry(&http.Client{Timeout: a.Timeout}, req, nil, a.Log, a.Retries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return decodeModelList(resp.Body)
}
