package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the exporter
type Config struct {
	// Output file layout and serialization
	Output OutputConfig `yaml:"output" json:"output"`

	// Advisory file locking policy
	Lock LockConfig `yaml:"lock" json:"lock"`

	// Checkpoint and progress snapshot locations
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Export pipeline settings
	Export ExportConfig `yaml:"export" json:"export"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// OutputConfig controls where and how resource files are written
type OutputConfig struct {
	RootDir     string `yaml:"root_dir" json:"root_dir"`
	FileNaming  string `yaml:"file_naming" json:"file_naming"` // lowercase, kebab-case, snake_case
	PrettyPrint bool   `yaml:"pretty_print" json:"pretty_print"`
	Compression string `yaml:"compression" json:"compression"` // none, gzip, brotli
}

// LockConfig controls lock staleness and retry behavior
type LockConfig struct {
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
}

// CheckpointConfig holds resume and progress snapshot paths.
// The snapshot file is kept distinct from the checkpoint file so the
// periodic flush never contends with resume-state saves.
type CheckpointConfig struct {
	Path          string        `yaml:"path" json:"path"`
	SnapshotPath  string        `yaml:"snapshot_path" json:"snapshot_path"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// ExportConfig holds pipeline settings
type ExportConfig struct {
	Concurrency int  `yaml:"concurrency" json:"concurrency"`
	Progress    bool `yaml:"progress" json:"progress"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			RootDir:     "./export",
			FileNaming:  "lowercase",
			PrettyPrint: false,
			Compression: "none",
		},
		Lock: LockConfig{
			Timeout:    30 * time.Second,
			RetryDelay: 100 * time.Millisecond,
			MaxRetries: 50,
		},
		Checkpoint: CheckpointConfig{
			Path:          "./export/.glexport/checkpoint.json",
			SnapshotPath:  "./export/.glexport/progress.json",
			FlushInterval: time.Second,
		},
		Export: ExportConfig{
			Concurrency: 4,
			Progress:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv overrides configuration from environment variables
func (c *Config) LoadFromEnv() {
	if rootDir := os.Getenv("GLEXPORT_ROOT_DIR"); rootDir != "" {
		c.Output.RootDir = rootDir
	}
	if naming := os.Getenv("GLEXPORT_FILE_NAMING"); naming != "" {
		c.Output.FileNaming = naming
	}
	if compression := os.Getenv("GLEXPORT_COMPRESSION"); compression != "" {
		c.Output.Compression = compression
	}
	if pretty := os.Getenv("GLEXPORT_PRETTY_PRINT"); pretty != "" {
		c.Output.PrettyPrint = strings.ToLower(pretty) == "true"
	}
	if timeout := os.Getenv("GLEXPORT_LOCK_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			c.Lock.Timeout = d
		}
	}
	if retries := os.Getenv("GLEXPORT_LOCK_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n > 0 {
			c.Lock.MaxRetries = n
		}
	}
	if path := os.Getenv("GLEXPORT_CHECKPOINT_PATH"); path != "" {
		c.Checkpoint.Path = path
	}
	if concurrency := os.Getenv("GLEXPORT_CONCURRENCY"); concurrency != "" {
		if n, err := strconv.Atoi(concurrency); err == nil && n > 0 {
			c.Export.Concurrency = n
		}
	}
	if logLevel := os.Getenv("GLEXPORT_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches standard locations in order of precedence
func (c *Config) findConfigFile() string {
	locations := []string{
		".glexport.yaml",
		".glexport.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "glexport", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "glexport", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".glexport.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Output.RootDir == "" {
		errs = append(errs, errors.New("output root directory is required"))
	}

	validNaming := map[string]bool{
		"lowercase": true, "kebab-case": true, "snake_case": true,
	}
	if !validNaming[strings.ToLower(c.Output.FileNaming)] {
		errs = append(errs, fmt.Errorf("invalid file naming convention: %s", c.Output.FileNaming))
	}

	validCompression := map[string]bool{
		"none": true, "gzip": true, "brotli": true,
	}
	if !validCompression[strings.ToLower(c.Output.Compression)] {
		errs = append(errs, fmt.Errorf("invalid compression: %s", c.Output.Compression))
	}

	if c.Lock.Timeout <= 0 {
		errs = append(errs, errors.New("lock timeout must be positive"))
	}
	if c.Lock.RetryDelay <= 0 {
		errs = append(errs, errors.New("lock retry delay must be positive"))
	}
	if c.Lock.MaxRetries < 0 {
		errs = append(errs, errors.New("lock max retries cannot be negative"))
	}

	if c.Checkpoint.Path == "" {
		errs = append(errs, errors.New("checkpoint path is required"))
	}
	if c.Checkpoint.Path != "" && c.Checkpoint.Path == c.Checkpoint.SnapshotPath {
		errs = append(errs, errors.New("checkpoint and snapshot paths must differ"))
	}
	if c.Checkpoint.FlushInterval <= 0 {
		errs = append(errs, errors.New("flush interval must be positive"))
	}

	if c.Export.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}

	// Must stay in sync with the levels the logger parses
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "warning": true,
		"error": true, "fatal": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if rootDir, ok := flags["output"].(string); ok && rootDir != "" {
		c.Output.RootDir = rootDir
	}
	if naming, ok := flags["file-naming"].(string); ok && naming != "" {
		c.Output.FileNaming = naming
	}
	if compression, ok := flags["compression"].(string); ok && compression != "" {
		c.Output.Compression = compression
	}
	if concurrency, ok := flags["concurrency"].(int); ok && concurrency > 0 {
		c.Export.Concurrency = concurrency
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if progress, ok := flags["progress"].(bool); ok {
		c.Export.Progress = progress
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".glexport.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config.LoadFromEnv()
	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
