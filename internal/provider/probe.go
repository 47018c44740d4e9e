package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrUnreachable = errors.New("not connected to any completion endpoint")

type Endpoint struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

type ProbeResult struct {
	Endpoint Endpoint
	Latency  time.Duration
}

func (r ProbeResult) String() string {
	return fmt.Sprintf("Connected to %s (ping: %dms)", r.Endpoint.Name, r.Latency.Milliseconds())
}

// Prober checks the endpoints in order and reports the first one that answers.
type Prober struct {
	Endpoints []Endpoint
	Path      string // appended to the base URL, e.g. "/models"
	Header    http.Header
	Timeout   time.Duration
	// OnSelect is called with the endpoint that answered.
	OnSelect func(Endpoint)
	Log      *zap.Logger
}

func (p *Prober) Probe(ctx context.Context) (ProbeResult, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	log := nopIfNil(p.Log)

	for _, ep := range p.Endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(ep.BaseURL, "/")+p.Path, nil)
		if err != nil {
			log.Debug("probe request", zap.String("endpoint", ep.Name), zap.Error(err))
			continue
		}
		for k, v := range p.Header {
			req.Header[k] = v
		}
		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			log.Debug("probe failed", zap.String("endpoint", ep.Name), zap.Error(err))
			continue
		}
		resp.Body.Close()
		latency := time.Since(start)
		if resp.StatusCode != http.StatusOK {
			log.Debug("probe status", zap.String("endpoint", ep.Name), zap.Int("status", resp.StatusCode))
			continue
		}
		log.Debug("probe ok", zap.String("endpoint", ep.Name), zap.Duration("latency", latency))
		if p.OnSelect != nil {
			p.OnSelect(ep)
		}
		return ProbeResult{Endpoint: ep, Latency: latency}, nil
	}
	return ProbeResult{}, ErrUnreachable
}
