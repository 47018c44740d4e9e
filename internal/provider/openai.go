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

// OpenAI talks to any OpenAI compatible server (LM Studio, Ollama, ...).
type OpenAI struct {
	APIKey            string
	Timeout           time.Duration // zero means no timeout
	StreamIdleTimeout time.Duration // zero disables the idle watchdog
	Retries           int
	Log               *zap.Logger

	mu      sync.Mutex
	baseURL string
}

func NewOpenAI(baseURL, apiKey string) *OpenAI {
	return &OpenAI{baseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey}
}

func (o *OpenAI) BaseURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.baseURL
}

// SetBaseURL retargets the client, used after a connectivity probe.
func (o *OpenAI) SetBaseURL(u string) {
	o.mu.Lock()
	o.baseURL = strings.TrimRight(u, "/")
	o.mu.Unlock()
}

func (o *OpenAI) client() *http.Client {
	return &http.Client{Timeout: o.Timeout}
}

func (o *OpenAI) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.BaseURL()+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}
	return req, nil
}

// idleTimeoutReader wraps a reader and returns an error if no data is read within the timeout.
// It uses a dedicated buffer to avoid data races when the underlying Read outlives the timeout.
type idleTimeoutReader struct {
	r       io.ReadCloser
	timeout time.Duration
	buf     []byte
}

func (itr *idleTimeoutReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	if len(itr.buf) < len(p) {
		itr.buf = make([]byte, len(p))
	}
	buf := itr.buf[:len(p)]
	ch := make(chan result, 1)
	go func() {
		n, err := itr.r.Read(buf)
		ch <- result{n, err}
	}()
	timer := time.NewTimer(itr.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		copy(p[:res.n], buf[:res.n])
		return res.n, res.err
	case <-timer.C:
		// closing unblocks the pending Read; the buffer is abandoned with it
		itr.r.Close()
		itr.buf = nil
		return 0, fmt.Errorf("stream idle timeout (%s without data)", itr.timeout)
	}
}

func (o *OpenAI) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   false,
	})
	req, err := o.newRequest(ctx, http.MethodPost, "/chat/completions", payload)
	if err != nil {
		return "", err
	}
	resp, err := doWithRetry(o.client(), req, payload, o.Log, o.Retries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

func (o *OpenAI) ChatStream(ctx context.Context, model string, messages []Message, onDelta func(StreamDelta)) error {
	payload, _ := json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   true,
	})
	req, err := o.newRequest(ctx, http.MethodPost, "/chat/completions", payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := doWithRetry(o.client(), req, payload, o.Log, o.Retries)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var body io.Reader = resp.Body
	if o.StreamIdleTimeout > 0 {
		body = &idleTimeoutReader{r: resp.Body, timeout: o.StreamIdleTimeout}
	}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // up to 1MB lines
	chunkCount := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			nopIfNil(o.Log).Debug("stream done", zap.Int("chunks", chunkCount))
			onDelta(StreamDelta{Done: true})
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		chunkCount++
		if len(chunk.Choices) == 0 {
			continue
		}
		if c := chunk.Choices[0].Delta.Content; c != "" {
			onDelta(StreamDelta{Content: c})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error after %d chunks: %w", chunkCount, err)
	}
	// some servers close the stream without a [DONE] marker
	nopIfNil(o.Log).Debug("stream ended without [DONE]", zap.Int("chunks", chunkCount))
	onDelta(StreamDelta{Done: true})
	return nil
}

func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	req, err := o.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := doWithRetry(o.client(), req, nil, o.Log, o.Retries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return decodeModelList(resp.Body)
}

func decodeModelList(r io.Reader) ([]string, error) {
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	ids := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
