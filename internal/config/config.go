// Package config handles errand configuration loading.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/errand/config.yaml, /etc/errand/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "errand", "config.yaml"))
	}

	paths = append(paths, "/etc/errand/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all errand configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Models    ModelsConfig    `yaml:"models"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Agent     AgentConfig     `yaml:"agent"`
	Session   SessionConfig   `yaml:"session"`
	DataDir   string          `yaml:"data_dir"`
	Timezone  string          `yaml:"timezone"`   // default for users with no timezone preference
	LogLevel  string          `yaml:"log_level"`  // trace, debug, info, warn, error
	LogFormat string          `yaml:"log_format"` // text or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Addr returns the host:port the server binds to.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Address, strconv.Itoa(l.Port))
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// OpenAIConfig defines settings for OpenAI or a compatible server.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ModelsConfig defines which models handle classification and tool rounds.
type ModelsConfig struct {
	Default    string        `yaml:"default"`
	Classifier string        `yaml:"classifier"` // empty routes classification like any other call
	OllamaURL  string        `yaml:"ollama_url"`
	LocalFirst bool          `yaml:"local_first"`
	Available  []ModelConfig `yaml:"available"`
}

// ModelConfig defines a single model's capabilities.
type ModelConfig struct {
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"` // ollama, anthropic, openai
	SupportsTools bool   `yaml:"supports_tools"`
	ContextWindow int    `yaml:"context_window"`
	Speed         int    `yaml:"speed"`          // 1-10
	Quality       int    `yaml:"quality"`        // 1-10
	CostTier      int    `yaml:"cost_tier"`      // 0=local, 1=cheap, 2=moderate, 3=expensive
	MinComplexity string `yaml:"min_complexity"` // simple, moderate, complex
}

// AgentConfig bounds the work done for a single inbound message.
type AgentConfig struct {
	MaxToolRounds int           `yaml:"max_tool_rounds"`
	MaxBatchItems int           `yaml:"max_batch_items"`
	ModelTimeout  time.Duration `yaml:"model_timeout"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"`
}

// SessionConfig controls short-term conversation memory.
type SessionConfig struct {
	TTL              time.Duration `yaml:"ttl"`
	RecentTasks      int           `yaml:"recent_tasks"`
	RecentPeople     int           `yaml:"recent_people"`
	UndoDepth        int           `yaml:"undo_depth"`
	RecentTurns      int           `yaml:"recent_turns"`
	PatternThreshold float64       `yaml:"pattern_threshold"`
	EntitiesTTL      time.Duration `yaml:"entities_ttl"`
}

// Load reads configuration from a YAML file, expanding ${VAR} references
// from the environment, and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration that runs against a local Ollama.
func Default() *Config {
	cfg := &Config{
		Models: ModelsConfig{
			Default:    "qwen3:8b",
			Classifier: "qwen3:4b",
			LocalFirst: true,
			Available: []ModelConfig{
				{
					Name:          "qwen3:4b",
					Provider:      "ollama",
					SupportsTools: true,
					ContextWindow: 8192,
					Speed:         9,
					Quality:       5,
					CostTier:      0,
					MinComplexity: "simple",
				},
				{
					Name:          "qwen3:8b",
					Provider:      "ollama",
					SupportsTools: true,
					ContextWindow: 32768,
					Speed:         6,
					Quality:       7,
					CostTier:      0,
					MinComplexity: "moderate",
				},
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./db"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Models.Default == "" && len(c.Models.Available) > 0 {
		c.Models.Default = c.Models.Available[0].Name
	}

	a := &c.Agent
	if a.MaxToolRounds == 0 {
		a.MaxToolRounds = 3
	}
	if a.MaxBatchItems == 0 {
		a.MaxBatchItems = 10
	}
	if a.ModelTimeout == 0 {
		a.ModelTimeout = 30 * time.Second
	}
	if a.ToolTimeout == 0 {
		a.ToolTimeout = 5 * time.Second
	}

	s := &c.Session
	if s.TTL == 0 {
		s.TTL = 30 * time.Minute
	}
	if s.RecentTasks == 0 {
		s.RecentTasks = 5
	}
	if s.RecentPeople == 0 {
		s.RecentPeople = 5
	}
	if s.UndoDepth == 0 {
		s.UndoDepth = 5
	}
	if s.RecentTurns == 0 {
		s.RecentTurns = 6
	}
	if s.PatternThreshold == 0 {
		s.PatternThreshold = 0.6
	}
	if s.EntitiesTTL == 0 {
		s.EntitiesTTL = time.Hour
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if c.Models.Default == "" {
		errs = append(errs, errors.New("models.default is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}

	for _, m := range c.Models.Available {
		switch m.Provider {
		case "ollama", "":
		case "anthropic":
			if c.Anthropic.APIKey == "" {
				errs = append(errs, fmt.Errorf("model %s uses anthropic but anthropic.api_key is empty", m.Name))
			}
		case "openai":
			if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
				errs = append(errs, fmt.Errorf("model %s uses openai but openai.api_key is empty", m.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("model %s: unknown provider %q", m.Name, m.Provider))
		}
	}

	if c.Agent.MaxToolRounds < 1 {
		errs = append(errs, errors.New("agent.max_tool_rounds must be at least 1"))
	}
	if c.Agent.MaxBatchItems < 1 {
		errs = append(errs, errors.New("agent.max_batch_items must be at least 1"))
	}
	if c.Agent.ModelTimeout < 0 || c.Agent.ToolTimeout < 0 {
		errs = append(errs, errors.New("agent timeouts must not be negative"))
	}
	if c.Session.PatternThreshold < 0 || c.Session.PatternThreshold > 1 {
		errs = append(errs, fmt.Errorf("session.pattern_threshold %.2f must be within [0,1]", c.Session.PatternThreshold))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, errors.New("session.ttl must not be negative"))
	}

	return errors.Join(errs...)
}

// Location returns the configured default timezone, or UTC if it
// cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
