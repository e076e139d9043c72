// Package config provides configuration management for the queue daemon.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (CUTIQ_*)
// 3. Project config (.cuti-queue/config.yaml in cwd)
// 4. Home config (~/.cuti-queue/config.yaml)
// 5. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all queue-daemon configuration, per the options table of
// the specification's external-interfaces section.
type Config struct {
	// StorageDir is the root directory for all persisted state.
	StorageDir string `yaml:"storage_dir" json:"storage_dir"`

	// ExecutorCommand is the binary name/path of the external CLI.
	ExecutorCommand string `yaml:"executor_command" json:"executor_command"`

	// CheckIntervalSeconds is the processor tick length.
	CheckIntervalSeconds int `yaml:"check_interval_seconds" json:"check_interval_seconds"`

	// ExecutionTimeoutSeconds is the subprocess wall-clock timeout.
	ExecutionTimeoutSeconds int `yaml:"execution_timeout_seconds" json:"execution_timeout_seconds"`

	// MaxRetriesDefault is the default per-prompt retry cap.
	MaxRetriesDefault int `yaml:"max_retries_default" json:"max_retries_default"`

	// RateLimitBackoffSeconds is the fallback wait when no reset time can be parsed.
	RateLimitBackoffSeconds int `yaml:"rate_limit_backoff_seconds" json:"rate_limit_backoff_seconds"`

	// OutputCaptureBytes is the max stdout+stderr captured per run.
	OutputCaptureBytes int `yaml:"output_capture_bytes" json:"output_capture_bytes"`

	// ShutdownGraceSeconds is how long shutdown waits for in-flight work.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" json:"shutdown_grace_seconds"`

	// RateLimitSignals overrides the substring list used to detect a
	// rate-limited executor exit. Matching is case-insensitive.
	RateLimitSignals []string `yaml:"rate_limit_signals" json:"rate_limit_signals"`

	// ListenAddr is the control-plane HTTP bind address.
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// DryRun validates configuration and executor availability, then
	// exits without starting the processor or HTTP server.
	DryRun bool `yaml:"dry_run" json:"dry_run"`
}

const (
	defaultStorageDirName  = ".cuti-queue"
	defaultExecutorCommand = "claude"
)

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		StorageDir:              filepath.Join(home, defaultStorageDirName),
		ExecutorCommand:         defaultExecutorCommand,
		CheckIntervalSeconds:    30,
		ExecutionTimeoutSeconds: 3600,
		MaxRetriesDefault:       3,
		RateLimitBackoffSeconds: 60,
		OutputCaptureBytes:      1 << 20,
		ShutdownGraceSeconds:    5,
		RateLimitSignals:        []string{"rate limit", "quota", "too many requests", "retry after"},
		ListenAddr:              "127.0.0.1:8420",
		Verbose:                 false,
	}
}

// CheckInterval returns CheckIntervalSeconds as a time.Duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// ExecutionTimeout returns ExecutionTimeoutSeconds as a time.Duration.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSeconds) * time.Second
}

// RateLimitBackoff returns RateLimitBackoffSeconds as a time.Duration.
func (c *Config) RateLimitBackoff() time.Duration {
	return time.Duration(c.RateLimitBackoffSeconds) * time.Second
}

// ShutdownGrace returns ShutdownGraceSeconds as a time.Duration.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults.
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	if homeConfig, err := loadFromPath(homeConfigPath()); err == nil && homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}
	if projectConfig, err := loadFromPath(projectConfigPath()); err == nil && projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultStorageDirName, "config.yaml")
}

func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("CUTIQ_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, defaultStorageDirName, "config.yaml")
}

func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("CUTIQ_STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("CUTIQ_EXECUTOR_COMMAND"); v != "" {
		cfg.ExecutorCommand = v
	}
	if v := envInt("CUTIQ_CHECK_INTERVAL_SECONDS"); v != 0 {
		cfg.CheckIntervalSeconds = v
	}
	if v := envInt("CUTIQ_EXECUTION_TIMEOUT_SECONDS"); v != 0 {
		cfg.ExecutionTimeoutSeconds = v
	}
	if v := envInt("CUTIQ_MAX_RETRIES_DEFAULT"); v != 0 {
		cfg.MaxRetriesDefault = v
	}
	if v := envInt("CUTIQ_RATE_LIMIT_BACKOFF_SECONDS"); v != 0 {
		cfg.RateLimitBackoffSeconds = v
	}
	if v := envInt("CUTIQ_OUTPUT_CAPTURE_BYTES"); v != 0 {
		cfg.OutputCaptureBytes = v
	}
	if v := envInt("CUTIQ_SHUTDOWN_GRACE_SECONDS"); v != 0 {
		cfg.ShutdownGraceSeconds = v
	}
	if v := os.Getenv("CUTIQ_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CUTIQ_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("CUTIQ_DRY_RUN"); v == "true" || v == "1" {
		cfg.DryRun = true
	}
	if v := os.Getenv("CUTIQ_RATE_LIMIT_SIGNALS"); v != "" {
		cfg.RateLimitSignals = strings.Split(v, ",")
	}
	return cfg
}

func envInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// merge merges src into dst, with non-zero src fields taking precedence.
func merge(dst, src *Config) *Config {
	if src.StorageDir != "" {
		dst.StorageDir = src.StorageDir
	}
	if src.ExecutorCommand != "" {
		dst.ExecutorCommand = src.ExecutorCommand
	}
	if src.CheckIntervalSeconds != 0 {
		dst.CheckIntervalSeconds = src.CheckIntervalSeconds
	}
	if src.ExecutionTimeoutSeconds != 0 {
		dst.ExecutionTimeoutSeconds = src.ExecutionTimeoutSeconds
	}
	if src.MaxRetriesDefault != 0 {
		dst.MaxRetriesDefault = src.MaxRetriesDefault
	}
	if src.RateLimitBackoffSeconds != 0 {
		dst.RateLimitBackoffSeconds = src.RateLimitBackoffSeconds
	}
	if src.OutputCaptureBytes != 0 {
		dst.OutputCaptureBytes = src.OutputCaptureBytes
	}
	if src.ShutdownGraceSeconds != 0 {
		dst.ShutdownGraceSeconds = src.ShutdownGraceSeconds
	}
	if len(src.RateLimitSignals) > 0 {
		dst.RateLimitSignals = src.RateLimitSignals
	}
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.DryRun {
		dst.DryRun = true
	}
	return dst
}
