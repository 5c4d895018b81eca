package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	LLM         LLM         `yaml:"llm"`
	Analysis    Analysis    `yaml:"analysis"`
	Lexicon     Lexicon     `yaml:"lexicon"`
	ActionRules ActionRules `yaml:"action_rules"`
	Collect     Collect     `yaml:"collect"`
	Schedule    string      `yaml:"schedule"`
	Output      Output      `yaml:"output"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
}

type LLM struct {
	Provider          string   `yaml:"provider"`
	Model             string   `yaml:"model"`
	OllamaURL         string   `yaml:"ollama_url"`
	OpenAIModel       string   `yaml:"openai_model"`
	GeminiModel       string   `yaml:"gemini_model"`
	APIKeyEnv         string   `yaml:"api_key_env"`
	GeminiAPIKeyEnv   string   `yaml:"gemini_api_key_env"`
	EmbeddingProvider string   `yaml:"embedding_provider"`
	EmbeddingModel    string   `yaml:"embedding_model"`
	MaxTokens         int      `yaml:"max_tokens"`
	RequestTimeout    Duration `yaml:"request_timeout"`
}

type Analysis struct {
	Version         string  `yaml:"version"`
	Timezone        string  `yaml:"timezone"`
	DedupThreshold  float64 `yaml:"dedup_threshold"`
	MaxSplitParts   int     `yaml:"max_split_parts"`
	MinClusterSize  int     `yaml:"min_cluster_size"`
	WordCloudTopK   int     `yaml:"wordcloud_top_k"`
	RecordKeywords  int     `yaml:"record_keywords"`
	ClusterKeywords int     `yaml:"cluster_keywords"`
	HighlightLimit  int     `yaml:"highlight_limit"`
}

// Lexicon holds the term and pattern lists the text stages match against.
// Patterns are Go regular expressions; terms are literal, matched case-insensitively.
type Lexicon struct {
	Profanity           []string `yaml:"profanity"`
	MeaninglessPatterns []string `yaml:"meaningless_patterns"`
	Interjections       []string `yaml:"interjections"`
	SeverityPatterns    []string `yaml:"severity_patterns"`
	ActionPatterns      []string `yaml:"action_patterns"`
	SplitMarkers        []string `yaml:"split_markers"`
	Stopwords           []string `yaml:"stopwords"`
}

// ActionRules lists, per rule kind, the substrings that identify a category label.
type ActionRules struct {
	Operational []string `yaml:"operational"`
	Schedule    []string `yaml:"schedule"`
	Assignment  []string `yaml:"assignment"`
	Burnout     []string `yaml:"burnout"`
	Team        []string `yaml:"team"`
}

type Collect struct {
	MaxPerFeed   int      `yaml:"max_per_feed"`
	FetchTimeout Duration `yaml:"fetch_timeout"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration that unmarshals from strings like "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ConfigDir returns the XDG config directory for camppulse.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "camppulse")
}

// DataDir returns the XDG data directory for camppulse.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "camppulse")
}

// LoadEnv loads a .env file from the working directory if one exists.
// Missing files are not an error.
func LoadEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/camppulse/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'camppulse init' to create a default config",
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

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	return parse(nil)
}

// parse parses YAML bytes into a Config. Values start from the embedded
// default so a partial file only overrides what it names.
func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(DefaultConfigYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Analysis.DedupThreshold <= 0 || c.Analysis.DedupThreshold > 1 {
		return fmt.Errorf("analysis.dedup_threshold must be in (0, 1], got %v", c.Analysis.DedupThreshold)
	}
	if c.Analysis.MaxSplitParts < 1 {
		return fmt.Errorf("analysis.max_split_parts must be at least 1, got %d", c.Analysis.MaxSplitParts)
	}
	if c.Analysis.Version == "" {
		return fmt.Errorf("analysis.version must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone weeks are computed in.
func (c *Config) Location() (*time.Location, error) {
	if c.Analysis.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Analysis.Timezone)
	if err != nil {
		return nil, fmt.Errorf("analysis.timezone: %w", err)
	}
	return loc, nil
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
