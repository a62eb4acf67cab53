package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/ejagojo/SentryCheck/internal/rules"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "config.schema.json"

// Config represents the sentrycheck configuration
type Config struct {
	Concurrency    int                `yaml:"concurrency,omitempty"`
	NoBaseline     bool               `yaml:"no_baseline,omitempty"`
	WebhookURL     string             `yaml:"webhook_url,omitempty"`
	WebhookSecret  string             `yaml:"webhook_secret,omitempty"`
	SeverityThresh string             `yaml:"severity,omitempty"`
	Log            LogConfig          `yaml:"log,omitempty"`
	Platform       PlatformConfig     `yaml:"platform,omitempty"`
	Rules          []rules.RuleConfig `yaml:"rules"`
}

// LogConfig selects the structured log handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// PlatformConfig configures the external scanning platform bridge.
// Properties are passed through untouched.
type PlatformConfig struct {
	LogFile    string            `yaml:"log_file,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Concurrency:    4,
		SeverityThresh: "high",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Rules: rules.DefaultRules(),
	}
}

// DefaultConfigPath returns the default path to the configuration file
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentrycheck.yaml"
	}
	return filepath.Join(home, ".sentrycheck.yaml")
}

// Load loads the configuration from the given path. A missing file yields
// the defaults; a malformed one is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Set defaults
	def := Default()
	if config.Concurrency == 0 {
		config.Concurrency = def.Concurrency
	}
	if config.SeverityThresh == "" {
		config.SeverityThresh = def.SeverityThresh
	}
	if config.Log.Level == "" {
		config.Log.Level = def.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = def.Log.Format
	}
	if len(config.Rules) == 0 {
		config.Rules = def.Rules
	}

	return &config, nil
}

// Validate checks YAML configuration against the embedded JSON schema.
func Validate(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees JSON value types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert config: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to convert config: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load config schema: %w", err)
	}
	return compiler.Compile(schemaURL)
}

// Save saves the configuration to the given path
func Save(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Merge merges environment variables and flags into the config. Flags take
// precedence over the environment, which takes precedence over the file.
func Merge(config *Config, flags map[string]interface{}) *Config {
	merged := *config

	if url := os.Getenv("SENTRYCHECK_WEBHOOK_URL"); url != "" {
		merged.WebhookURL = url
	}
	if secret := os.Getenv("SENTRYCHECK_WEBHOOK_SECRET"); secret != "" {
		merged.WebhookSecret = secret
	}
	if level := os.Getenv("SENTRYCHECK_LOG_LEVEL"); level != "" {
		merged.Log.Level = strings.ToLower(level)
	}

	for k, v := range flags {
		switch k {
		case "threads":
			if n, ok := v.(int); ok && n > 0 {
				merged.Concurrency = n
			}
		case "no-baseline":
			if b, ok := v.(bool); ok && b {
				merged.NoBaseline = b
			}
		case "webhook-url":
			if s, ok := v.(string); ok && s != "" {
				merged.WebhookURL = s
			}
		case "webhook-secret":
			if s, ok := v.(string); ok && s != "" {
				merged.WebhookSecret = s
			}
		case "severity":
			if s, ok := v.(string); ok && s != "" {
				merged.SeverityThresh = s
			}
		case "log-level":
			if s, ok := v.(string); ok && s != "" {
				merged.Log.Level = s
			}
		case "log-format":
			if s, ok := v.(string); ok && s != "" {
				merged.Log.Format = s
			}
		case "platform-log":
			if s, ok := v.(string); ok && s != "" {
				merged.Platform.LogFile = s
			}
		}
	}

	return &merged
}
