package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MegaGrindStone/openrouter-chat/internal/handlers"
	"github.com/MegaGrindStone/openrouter-chat/internal/services"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	llm(systemPrompt string, logger *slog.Logger) (handlers.LLM, error)
	model() string
	applyEnv(getenv func(string) string)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	// Model is the provider's default model, used when the top level defaultModel is empty.
	Model string `yaml:"model"`
}

type config struct {
	Port         string   `yaml:"port"`
	SystemPrompt string   `yaml:"systemPrompt"`
	DefaultModel string   `yaml:"defaultModel"`
	Models       []string `yaml:"models"`
	LogLevel     string   `yaml:"logLevel"`
	LogFormat    string   `yaml:"logFormat"`
	CodeStyle    string   `yaml:"codeStyle"`
	// SessionTTL is how long an idle browser conversation is kept, e.g. "30m".
	SessionTTL time.Duration `yaml:"sessionTTL"`
	LLM        llmConfig     `yaml:"llm"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

const (
	defaultPort     = "8080"
	configDirName   = "openrouter-chat"
	configFileName  = "config.yaml"
	defaultProvider = "openrouter"
)

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port         string         `yaml:"port"`
		SystemPrompt string         `yaml:"systemPrompt"`
		DefaultModel string         `yaml:"defaultModel"`
		Models       []string       `yaml:"models"`
		LogLevel     string         `yaml:"logLevel"`
		LogFormat    string         `yaml:"logFormat"`
		CodeStyle    string         `yaml:"codeStyle"`
		SessionTTL   time.Duration  `yaml:"sessionTTL"`
		LLM          map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.SystemPrompt = rawConfig.SystemPrompt
	c.DefaultModel = rawConfig.DefaultModel
	c.Models = rawConfig.Models
	c.LogLevel = rawConfig.LogLevel
	c.LogFormat = rawConfig.LogFormat
	c.CodeStyle = rawConfig.CodeStyle
	c.SessionTTL = rawConfig.SessionTTL

	if rawConfig.LLM == nil {
		c.LLM = &openRouterConfig{BaseLLMConfig: BaseLLMConfig{Provider: defaultProvider}}
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "openrouter":
		llm = &openRouterConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func defaultConfig() config {
	return config{
		LLM: &openRouterConfig{BaseLLMConfig: BaseLLMConfig{Provider: defaultProvider}},
	}
}

func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, configDirName, configFileName), nil
}

// loadConfig reads the configuration file at path and overlays the environment. An empty path looks for
// the file in the user config directory, and its absence is not an error there: the server then runs
// on OpenRouter with settings from the environment alone.
func loadConfig(path string, getenv func(string) string) (config, error) {
	explicit := path != ""
	if !explicit {
		p, err := defaultConfigPath()
		if err != nil {
			return config{}, err
		}
		path = p
	}

	cfg := defaultConfig()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if cfg, err = decodeConfig(f); err != nil {
			return config{}, fmt.Errorf("error decoding config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}

	cfg.applyEnv(getenv)

	return cfg, nil
}

func decodeConfig(r io.Reader) (config, error) {
	cfg := defaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, err
	}
	return cfg, nil
}

// applyEnv fills settings the file left empty from the environment.
func (c *config) applyEnv(getenv func(string) string) {
	if c.Port == "" {
		c.Port = getenv("PORT")
	}
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.DefaultModel == "" {
		c.DefaultModel = getenv("OPENROUTER_DEFAULT_MODEL")
	}
	if c.DefaultModel == "" {
		c.DefaultModel = c.LLM.model()
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = services.DefaultSystemPrompt
	}
	c.LLM.applyEnv(getenv)
}

func (c config) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if c.LogLevel != "" {
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", c.LogFormat)
	}
}

func (b BaseLLMConfig) model() string {
	return b.Model
}

func (o *openRouterConfig) applyEnv(getenv func(string) string) {
	if o.APIKey == "" {
		o.APIKey = getenv("OPENROUTER_API_KEY")
	}
}

// llm builds the OpenRouter client even without an API key: requests then fail with 401 instead of the
// server refusing to start.
func (o openRouterConfig) llm(systemPrompt string, logger *slog.Logger) (handlers.LLM, error) {
	return services.NewOpenRouter(services.Config{
		APIKey:       o.APIKey,
		BaseURL:      o.BaseURL,
		SystemPrompt: systemPrompt,
	}, logger), nil
}

func (o *openAIConfig) applyEnv(getenv func(string) string) {
	if o.APIKey == "" {
		o.APIKey = getenv("OPENAI_API_KEY")
	}
}

func (o openAIConfig) llm(systemPrompt string, logger *slog.Logger) (handlers.LLM, error) {
	return services.NewOpenAI(services.Config{
		APIKey:       o.APIKey,
		BaseURL:      o.BaseURL,
		SystemPrompt: systemPrompt,
	}, logger), nil
}

func (a *anthropicConfig) applyEnv(getenv func(string) string) {
	if a.APIKey == "" {
		a.APIKey = getenv("ANTHROPIC_API_KEY")
	}
}

func (a anthropicConfig) llm(systemPrompt string, logger *slog.Logger) (handlers.LLM, error) {
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}
	return services.NewAnthropic(services.Config{
		APIKey:       a.APIKey,
		BaseURL:      a.BaseURL,
		SystemPrompt: systemPrompt,
		MaxTokens:    a.MaxTokens,
	}, logger), nil
}

func (o *ollamaConfig) applyEnv(getenv func(string) string) {
	if o.Host == "" {
		o.Host = getenv("OLLAMA_HOST")
	}
}

func (o ollamaConfig) llm(systemPrompt string, logger *slog.Logger) (handlers.LLM, error) {
	return services.NewOllama(services.Config{
		BaseURL:      o.Host,
		SystemPrompt: systemPrompt,
	}, logger)
}
