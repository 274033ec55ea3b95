package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// Backend names
const (
	BackendChatCompletions = "chatcompletions"
	BackendOpenAI          = "openai"
	BackendOllama          = "ollama"
)

// Endpoint and model defaults
const (
	DefaultAPIURL    = "https://api.openai.com/v1/chat/completions"
	DefaultOllamaURL = "http://localhost:11434"
	DefaultModel     = "gpt-4o"
)

// Config holds the application configuration
type Config struct {
	API        APIConfig        `json:"api" yaml:"api"`
	Credential CredentialConfig `json:"credential" yaml:"credential"`
	Image      ImageConfig      `json:"image" yaml:"image"`
	Detection  DetectionConfig  `json:"detection" yaml:"detection"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// APIConfig holds the chat completions endpoint settings
type APIConfig struct {
	Backend   string `json:"backend" yaml:"backend"`
	URL       string `json:"url" yaml:"url"`
	Model     string `json:"model" yaml:"model"`
	MaxTokens int    `json:"max_tokens" yaml:"max_tokens"`
	// Timeout is a Go duration string; empty or "0" means no timeout
	Timeout string `json:"timeout" yaml:"timeout"`
}

// CredentialConfig says where the bearer token comes from
type CredentialConfig struct {
	Path string `json:"path" yaml:"path"`
	Raw  bool   `json:"raw" yaml:"raw"`
	Env  string `json:"env" yaml:"env"`
}

// ImageConfig holds configuration for the image payload
type ImageConfig struct {
	MimeType        string `json:"mime_type" yaml:"mime_type"`
	MaxDimension    int    `json:"max_dimension" yaml:"max_dimension"`
	Quality         int    `json:"quality" yaml:"quality"`
	ReencodeNonJPEG bool   `json:"reencode_non_jpeg" yaml:"reencode_non_jpeg"`
}

// DetectionConfig holds answer parsing and CLI defaults
type DetectionConfig struct {
	Lenient   bool   `json:"lenient" yaml:"lenient"`
	Predicate string `json:"predicate" yaml:"predicate"`
	ImagePath string `json:"image_path" yaml:"image_path"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Debug bool `json:"debug" yaml:"debug"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			Backend:   BackendChatCompletions,
			URL:       DefaultAPIURL,
			Model:     DefaultModel,
			MaxTokens: 300,
		},
		Credential: CredentialConfig{
			Path: "~/openapi.key",
		},
		Image: ImageConfig{
			MimeType: "image/jpeg",
			Quality:  85,
		},
		Detection: DetectionConfig{
			Predicate: "bike",
			ImagePath: "~/surprise.jpg",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = sonic.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration, as YAML or JSON depending on the extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = sonic.ConfigStd.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides values from EXISTS_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("EXISTS_BACKEND"); v != "" {
		c.API.Backend = v
	}
	if v := os.Getenv("EXISTS_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("EXISTS_MODEL"); v != "" {
		c.API.Model = v
	}
	if v := os.Getenv("EXISTS_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EXISTS_MAX_TOKENS: %w", err)
		}
		c.API.MaxTokens = n
	}
	if v := os.Getenv("EXISTS_TIMEOUT"); v != "" {
		c.API.Timeout = v
	}
	if v := os.Getenv("EXISTS_KEY_FILE"); v != "" {
		c.Credential.Path = v
	}
	if v := os.Getenv("EXISTS_KEY_ENV"); v != "" {
		c.Credential.Env = v
	}
	if v := os.Getenv("EXISTS_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EXISTS_DEBUG: %w", err)
		}
		c.Log.Debug = debug
	}
	return nil
}

// Normalize points the ollama backend at a local server when the URL was
// left at the OpenAI default.
func (c *Config) Normalize() {
	if c.API.Backend == BackendOllama && (c.API.URL == "" || c.API.URL == DefaultAPIURL) {
		c.API.URL = DefaultOllamaURL
	}
}

// TimeoutDuration parses API.Timeout
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.API.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.API.Timeout)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.API.Backend {
	case BackendChatCompletions, BackendOpenAI, BackendOllama:
	default:
		return fmt.Errorf("api.backend must be one of %s, %s, %s", BackendChatCompletions, BackendOpenAI, BackendOllama)
	}

	if c.API.URL == "" {
		return fmt.Errorf("api.url cannot be empty")
	}
	if u, err := url.Parse(c.API.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.url must be an absolute URL")
	}

	if c.API.Model == "" {
		return fmt.Errorf("api.model cannot be empty")
	}

	if c.API.Backend == BackendOllama && c.API.Model == DefaultModel {
		return fmt.Errorf("api.model must name an Ollama vision model")
	}

	if c.API.MaxTokens < 1 {
		return fmt.Errorf("api.max_tokens must be positive")
	}

	if d, err := c.TimeoutDuration(); err != nil || d < 0 {
		return fmt.Errorf("api.timeout must be a non-negative duration")
	}

	if c.Image.MimeType != "image/jpeg" {
		return fmt.Errorf("image.mime_type must be image/jpeg")
	}

	if c.Image.MaxDimension < 0 {
		return fmt.Errorf("image.max_dimension cannot be negative")
	}

	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "exists-in-image", "config.yaml")
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}
