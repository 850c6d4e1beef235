// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/smo-cookie/detect-and-match2/internal/paths"
)

// Detection modes
const (
	ModeCombined    = "combined"
	ModePatternOnly = "pattern_only"
)

// Store backends
const (
	StoreNone     = "none"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreS3       = "s3"
)

// Semantic backends
const (
	SemanticService = "service"
	SemanticChat    = "chat"
)

var validate = validator.New()

// Config represents the application configuration
type Config struct {
	Masking   MaskingConfig   `yaml:"masking"`
	Detection DetectionConfig `yaml:"detection"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Store     StoreConfig     `yaml:"store"`
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MaskingConfig controls the placeholder and where masked copies are written
type MaskingConfig struct {
	Placeholder string `yaml:"placeholder" validate:"required"`
	OutputDir   string `yaml:"output_dir"`
	Marker      string `yaml:"marker" validate:"required"` // inserted between stem and extension
}

// DetectionConfig selects detectors and extends the pattern catalog
type DetectionConfig struct {
	Mode     string          `yaml:"mode" validate:"oneof=combined pattern_only"`
	Disabled []string        `yaml:"disabled"` // pattern categories switched off
	Patterns []PatternConfig `yaml:"patterns" validate:"dive"`
}

// PatternConfig adds a pattern or overrides a built-in category
type PatternConfig struct {
	Category string `yaml:"category" validate:"required"`
	Label    string `yaml:"label"`
	Regex    string `yaml:"regex" validate:"required"`
}

// SemanticConfig configures the remote semantic detector
type SemanticConfig struct {
	Backend           string               `yaml:"backend" validate:"oneof=service chat"`
	Endpoint          string               `yaml:"endpoint" validate:"omitempty,url"`
	Model             string               `yaml:"model"`
	APIKeyEnv         string               `yaml:"api_key_env"`
	Timeout           time.Duration        `yaml:"timeout" validate:"gt=0"`
	MaxAttempts       int                  `yaml:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff    time.Duration        `yaml:"initial_backoff" validate:"gte=0"`
	MaxBackoff        time.Duration        `yaml:"max_backoff" validate:"gte=0"`
	RequestsPerMinute int                  `yaml:"requests_per_minute" validate:"gte=0"`
	FindingsKey       string               `yaml:"findings_key" validate:"required"`
	ExtraKey          string               `yaml:"extra_key" validate:"required"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the breaker wrapped around semantic calls
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `yaml:"open_timeout" validate:"gt=0"`
}

// StoreConfig selects the best-effort detection report store
type StoreConfig struct {
	Backend     string        `yaml:"backend" validate:"oneof=none file postgres redis s3"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	FilePath    string        `yaml:"file_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	RedisURL    string        `yaml:"redis_url"`
	RedisTTL    time.Duration `yaml:"redis_ttl" validate:"gte=0"`
	S3Bucket    string        `yaml:"s3_bucket"`
	S3Prefix    string        `yaml:"s3_prefix"`
	S3Region    string        `yaml:"s3_region"`
}

// EngineConfig bounds batch concurrency
type EngineConfig struct {
	MaxParallel int `yaml:"max_parallel" validate:"min=1,max=64"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Default returns the built-in configuration
func Default() *Config {
	config := &Config{}

	config.Masking.Placeholder = "****"
	config.Masking.Marker = "(masked)"

	config.Detection.Mode = ModeCombined

	config.Semantic.Backend = SemanticChat
	config.Semantic.Endpoint = "https://api.openai.com/v1"
	config.Semantic.Model = "gpt-4o"
	config.Semantic.APIKeyEnv = "OPENAI_API_KEY"
	config.Semantic.Timeout = 60 * time.Second
	config.Semantic.MaxAttempts = 3
	config.Semantic.InitialBackoff = 1 * time.Second
	config.Semantic.MaxBackoff = 10 * time.Second
	config.Semantic.FindingsKey = "personal_info"
	config.Semantic.ExtraKey = "extra_detections"
	config.Semantic.CircuitBreaker.Enabled = true
	config.Semantic.CircuitBreaker.FailureThreshold = 5
	config.Semantic.CircuitBreaker.OpenTimeout = 30 * time.Second

	config.Store.Backend = StoreNone
	config.Store.Timeout = 5 * time.Second
	config.Store.FilePath = "docmask-detections.jsonl"
	config.Store.RedisTTL = 0
	config.Store.S3Prefix = "detections/"

	config.Engine.MaxParallel = 4

	config.Logging.Level = "info"
	config.Logging.Format = "console"

	return config
}

// LoadConfig loads configuration from the specified file path
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	// If no config file specified, return default config
	if configPath == "" {
		return config, nil
	}

	cleanPath := filepath.Clean(configPath)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	defaultBreakerEnabled := config.Semantic.CircuitBreaker.Enabled

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Restore bool defaults that YAML leaves false when the key is absent
	if !containsField(data, "semantic", "circuit_breaker", "enabled") {
		config.Semantic.CircuitBreaker.Enabled = defaultBreakerEnabled
	}

	if config.Masking.OutputDir != "" {
		config.Masking.OutputDir = filepath.Clean(config.Masking.OutputDir)
	}

	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// FindConfigFile looks for a configuration file in standard locations
func FindConfigFile() string {
	for _, name := range []string{"docmask.yaml", "docmask.yml", ".docmask.yaml", ".docmask.yml"} {
		if fileExists(name) {
			return name
		}
	}

	standardConfig := paths.GetConfigFile()
	if fileExists(standardConfig) {
		return standardConfig
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeConfig := filepath.Join(home, ".docmask.yaml")
	if fileExists(homeConfig) {
		return homeConfig
	}

	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// containsField checks if a nested field exists in the YAML data
func containsField(data []byte, path ...string) bool {
	var yamlData map[string]interface{}
	err := yaml.Unmarshal(data, &yamlData)
	if err != nil {
		return false
	}

	current := yamlData
	for i, key := range path {
		if i == len(path)-1 {
			_, exists := current[key]
			return exists
		}
		if next, ok := current[key].(map[string]interface{}); ok {
			current = next
		} else {
			return false
		}
	}
	return false
}

// ValidateConfig validates struct tags and cross-field requirements
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		return formatValidationError(err)
	}

	if strings.TrimSpace(config.Masking.Placeholder) == "" {
		return fmt.Errorf("masking.placeholder must not be blank")
	}

	if config.Detection.Mode == ModeCombined && config.Semantic.Endpoint == "" {
		return fmt.Errorf("semantic.endpoint is required in %s mode", ModeCombined)
	}

	if config.Semantic.MaxBackoff > 0 && config.Semantic.MaxBackoff < config.Semantic.InitialBackoff {
		return fmt.Errorf("semantic.max_backoff must be >= semantic.initial_backoff")
	}

	if config.Masking.OutputDir != "" {
		if err := paths.ValidatePath(config.Masking.OutputDir); err != nil {
			return fmt.Errorf("invalid masking output directory: %w", err)
		}
	}

	if err := validateStore(&config.Store); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func validateStore(store *StoreConfig) error {
	switch store.Backend {
	case StoreFile:
		if store.FilePath == "" {
			return fmt.Errorf("file_path is required for the file backend")
		}
		return paths.ValidatePath(store.FilePath)
	case StorePostgres:
		if store.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres backend")
		}
	case StoreRedis:
		if store.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis backend")
		}
	case StoreS3:
		if store.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required for the s3 backend")
		}
	}
	return nil
}

// formatValidationError converts validator errors into one readable message
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s: failed '%s=%s' (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			messages = append(messages, fmt.Sprintf("%s: failed '%s'", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}

// APIKey resolves the semantic detector API key from the configured environment variable
func (c *SemanticConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}
