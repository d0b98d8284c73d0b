package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources  Sources  `yaml:"sources"`
	Tickers  []string `yaml:"tickers"`
	Pipeline Pipeline `yaml:"pipeline"`
	Collect  Collect  `yaml:"collect"`
	LLM      LLM      `yaml:"llm"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed     `yaml:"feeds"`
	APIs  APIsConfig `yaml:"apis"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type APIsConfig struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
}

// Pipeline holds the orchestration knobs: verification quorum,
// deadlines, retry policy, and the alert rule.
type Pipeline struct {
	RequiredSources     int      `yaml:"required_source_count"`
	VerificationTimeout Duration `yaml:"verification_timeout"`
	RetrievalK          int      `yaml:"retrieval_k"`
	DedupWindow         Duration `yaml:"dedup_window"`
	Workers             int      `yaml:"workers"`
	RetryAttempts       int      `yaml:"retry_attempts"`
	RetryBackoff        Duration `yaml:"retry_backoff"`
	SweepInterval       Duration `yaml:"sweep_interval"`
	Alert               Alert    `yaml:"alert"`
}

// Alert is the gate rule: which sentiment/impact pair raises an alert.
type Alert struct {
	Sentiment string `yaml:"sentiment"`
	Impact    string `yaml:"impact"`
}

type Collect struct {
	DaysBack     int  `yaml:"days_back"`
	EnrichBodies bool `yaml:"enrich_bodies"`
}

type LLM struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	OllamaURL      string  `yaml:"ollama_url"`
	EmbeddingModel string  `yaml:"embedding_model"`
	OpenAIModel    string  `yaml:"openai_model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Temperature    float64 `yaml:"temperature"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML fields like "30m" or "72h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// ConfigDir returns the XDG config directory for finsentry.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "finsentry")
}

// DataDir returns the XDG data directory for finsentry.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "finsentry")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/finsentry/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'finsentry init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			APIs: APIsConfig{
				NewsAPI: NewsAPIConfig{
					Enabled:   true,
					APIKeyEnv: "NEWSAPI_KEY",
					Query:     "stock market finance",
				},
			},
		},
		Pipeline: Pipeline{
			RequiredSources:     2,
			VerificationTimeout: Duration(30 * time.Minute),
			RetrievalK:          3,
			DedupWindow:         Duration(72 * time.Hour),
			Workers:             4,
			RetryAttempts:       3,
			RetryBackoff:        Duration(500 * time.Millisecond),
			SweepInterval:       Duration(5 * time.Second),
			Alert: Alert{
				Sentiment: "negative",
				Impact:    "high",
			},
		},
		Collect: Collect{
			DaysBack:     1,
			EnrichBodies: true,
		},
		LLM: LLM{
			Provider:       "ollama",
			Model:          "qwen2.5:7b",
			OllamaURL:      "http://localhost:11434",
			EmbeddingModel: "nomic-embed-text",
			OpenAIModel:    "gpt-4o-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			Temperature:    0.2,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
