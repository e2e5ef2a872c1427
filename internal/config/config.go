package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends accepted in classifier.backend
const (
	BackendHTTP     = "http"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Upload     UploadConfig     `json:"upload" yaml:"upload"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// ClassifierConfig selects and addresses the classification backend
type ClassifierConfig struct {
	Backend    string   `json:"backend" yaml:"backend"`
	Endpoint   string   `json:"endpoint" yaml:"endpoint"`
	Model      string   `json:"model,omitempty" yaml:"model,omitempty"`
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Timeout    Duration `json:"timeout" yaml:"timeout"`
}

// UploadConfig controls what is sent
type UploadConfig struct {
	Field       string `json:"field" yaml:"field"`
	RequireFile bool   `json:"require_file" yaml:"require_file"`
	MaxSide     int    `json:"max_side" yaml:"max_side"`
	Format      string `json:"format" yaml:"format"`
	Quality     int    `json:"quality" yaml:"quality"`
	MaxBytes    int64  `json:"max_bytes" yaml:"max_bytes"`
}

// ServerConfig holds settings for the web front end
type ServerConfig struct {
	Listen       string `json:"listen" yaml:"listen"`
	SessionCache int    `json:"session_cache" yaml:"session_cache"`
	SecureCookie bool   `json:"secure_cookie" yaml:"secure_cookie"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Duration is a time.Duration written as "30s" in config files
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("invalid duration %s", string(b))
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			Backend:  BackendHTTP,
			Endpoint: "http://localhost:8000/predict/",
		},
		Upload: UploadConfig{
			Field:       "file",
			RequireFile: true,
			MaxSide:     0,
			Format:      "jpg",
			Quality:     85,
			MaxBytes:    10 << 20,
		},
		Server: ServerConfig{
			Listen:       ":3000",
			SessionCache: 10000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file. Values missing
// from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile writes the configuration as JSON or YAML, chosen by extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Classifier.Backend {
	case BackendHTTP:
		if c.Classifier.Endpoint == "" {
			return fmt.Errorf("classifier.endpoint cannot be empty")
		}
	case BackendOllama, BackendLlamaCpp:
		if c.Classifier.Model == "" && c.Classifier.Backend == BackendOllama {
			return fmt.Errorf("classifier.model is required for the ollama backend")
		}
	default:
		return fmt.Errorf("classifier.backend must be one of http, ollama, llamacpp (got %q)", c.Classifier.Backend)
	}

	if c.Classifier.Timeout < 0 {
		return fmt.Errorf("classifier.timeout cannot be negative")
	}

	if c.Upload.Field == "" {
		return fmt.Errorf("upload.field cannot be empty")
	}

	if c.Upload.MaxSide < 0 {
		return fmt.Errorf("upload.max_side cannot be negative")
	}

	switch strings.ToLower(c.Upload.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("upload.format must be jpg, png or webp")
	}

	if c.Upload.Quality < 1 || c.Upload.Quality > 100 {
		return fmt.Errorf("upload.quality must be between 1 and 100")
	}

	if c.Upload.MaxBytes < 1 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}

	if c.Server.SessionCache < 1 {
		return fmt.Errorf("server.session_cache must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "catvsdog", "config.json")
}
