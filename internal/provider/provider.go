package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StreamDelta struct {
	Content string // text chunk
	Done    bool
}

// Provider is the completion capability consumed by the engine.
type Provider interface {
	// Complete returns the whole reply in one piece.
	Complete(ctx context.Context, model string, messages []Message) (string, error)
	// ChatStream calls onDelta for every fragment as it arrives.
	ChatStream(ctx context.Context, model string, messages []Message, onDelta func(StreamDelta)) error
	ListModels(ctx context.Context) ([]string, error)
}

// APIError is a non-success response from the completion service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &APIError{Status: resp.StatusCode, Body: string(b)}
}

func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// doWithRetry sends an HTTP request, retrying on 429 or 5xx.
func doWithRetry(client *http.Client, req *http.Request, payload []byte, log *zap.Logger, retries int) (*http.Response, error) {
	log = nopIfNil(log).With(zap.String("req", uuid.NewString()))
	if client == nil {
		client = http.DefaultClient
	}
	log.Debug("http request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("bytes", len(payload)))

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req)
		if err != nil {
			log.Debug("http error", zap.Error(err))
			return nil, err
		}
		log.Debug("http response", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
		if (resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500) || attempt >= retries {
			return resp, nil
		}
		resp.Body.Close()
		log.Debug("http retry", zap.Duration("wait", retryWait))
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(retryWait):
		}
		if payload != nil {
			req.Body = io.NopCloser(bytes.NewReader(payload))
		}
	}
}

var retryWait = 2 * time.Second
