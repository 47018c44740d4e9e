package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chai-cli/chai-cli/internal/provider"
)

type Config struct {
	Username          string       `yaml:"username"`
	MemoryDir         string       `yaml:"memory_dir"`
	CommandPrefix     string       `yaml:"command_prefix"`
	ConvoModel        string       `yaml:"convo_model"`
	SysModel          string       `yaml:"sys_model"`
	Provider          ProviderConf `yaml:"provider"`
	ProbeTimeout      int          `yaml:"probe_timeout"`       // seconds, default 2
	Timeout           int          `yaml:"timeout"`             // HTTP timeout in seconds, 0 = none
	StreamIdleTimeout int          `yaml:"stream_idle_timeout"` // seconds, 0 = none
	Retries           int          `yaml:"retries"`             // retry count on 429/5xx, default 1, -1 disables
	SelfImprove       SelfImprove  `yaml:"selfimprove"`
	LogFile           string       `yaml:"log_file"`
	Debug             bool         `yaml:"debug"`
}

type ProviderConf struct {
	Type      string              `yaml:"type"` // "openai" (default) or "anthropic"
	APIKey    string              `yaml:"api_key"`
	Endpoints []provider.Endpoint `yaml:"endpoints"` // probed in order
}

type SelfImprove struct {
	Threshold int `yaml:"threshold"`  // default 80
	MaxRounds int `yaml:"max_rounds"` // 0 = until the threshold is reached
}

func ChaiDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chai")
}

func Path() string {
	return filepath.Join(ChaiDir(), "chai.yaml")
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads chai.yaml after loading a .env file from the working directory,
// if any. Environment references in the file are expanded.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(Path())
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MemoryDir == "" {
		c.MemoryDir = filepath.Join(ChaiDir(), "memory")
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "!"
	}
	if c.ConvoModel == "" {
		c.ConvoModel = "hermes-3-llama-3.2-3b"
	}
	if c.SysModel == "" {
		c.SysModel = "hermes-3-llama-3.1-8b"
	}
	if c.Provider.Type == "" {
		c.Provider.Type = "openai"
	}
	if len(c.Provider.Endpoints) == 0 {
		c.Provider.Endpoints = []provider.Endpoint{
			{Name: "localhost", BaseURL: "http://localhost:1234/v1"},
			{Name: "velvet.tinysun.net", BaseURL: "http://velvet.tinysun.net:1234/v1"},
		}
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 2
	}
	switch {
	case c.Retries == 0:
		c.Retries = 1
	case c.Retries < 0:
		c.Retries = 0
	}
	if c.SelfImprove.Threshold <= 0 {
		c.SelfImprove.Threshold = 80
	}
	if c.SelfImprove.MaxRounds < 0 {
		c.SelfImprove.MaxRounds = 0
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(ChaiDir(), "chai.log")
	}
	c.MemoryDir = expandHome(c.MemoryDir)
	c.LogFile = expandHome(c.LogFile)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

func (c *Config) ProbeDuration() time.Duration {
	return time.Duration(c.ProbeTimeout) * time.Second
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) StreamIdleDuration() time.Duration {
	return time.Duration(c.StreamIdleTimeout) * time.Second
}
