package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/chai-cli/chai-cli/internal/config"
	"github.com/chai-cli/chai-cli/internal/logging"
	"github.com/chai-cli/chai-cli/internal/provider"
	"github.com/chai-cli/chai-cli/internal/store"
)

// retargetable providers can be pointed at the endpoint a probe selected.
type retargetable interface {
	provider.Provider
	SetBaseURL(u string)
}

// loadConfig falls back to defaults when chai.yaml does not exist yet.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	log, err := logging.New(cfg.LogFile, cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging disabled:", err)
		return zap.NewNop()
	}
	return log
}

func openStore(cfg *config.Config) (*store.Store, error) {
	s := store.New(cfg.MemoryDir)
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func buildProvider(cfg *config.Config, log *zap.Logger) (retargetable, error) {
	if len(cfg.Provider.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints configured in %s", config.Path())
	}
	base := cfg.Provider.Endpoints[0].BaseURL
	switch cfg.Provider.Type {
	case "anthropic":
		a := provider.NewAnthropic(base, cfg.Provider.APIKey)
		a.Timeout = cfg.TimeoutDuration()
		a.Retries = cfg.Retries
		a.Log = log.Named("anthropic")
		return a, nil
	case "openai", "":
		o := provider.NewOpenAI(base, cfg.Provider.APIKey)
		o.Timeout = cfg.TimeoutDuration()
		o.StreamIdleTimeout = cfg.StreamIdleDuration()
		o.Retries = cfg.Retries
		o.Log = log.Named("openai")
		return o, nil
	}
	return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider.Type)
}

// buildProber probes the model listing of each endpoint and retargets p to
// the first one that answers.
func buildProber(cfg *config.Config, p retargetable, log *zap.Logger) *provider.Prober {
	pr := &provider.Prober{
		Endpoints: cfg.Provider.Endpoints,
		Path:      "/models",
		Timeout:   cfg.ProbeDuration(),
		OnSelect: func(ep provider.Endpoint) {
			p.SetBaseURL(ep.BaseURL)
		},
		Log: log.Named("probe"),
	}
	if cfg.Provider.Type == "anthropic" {
		pr.Path = "/v1/models"
		pr.Header = http.Header{}
		pr.Header.Set("x-api-key", cfg.Provider.APIKey)
		pr.Header.Set("anthropic-version", "2023-06-01")
	}
	return pr
}
