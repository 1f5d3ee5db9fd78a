// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/bridgechat/internal/util"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete bridgechat configuration.
type Config struct {
	Webhook  WebhookConfig  `toml:"webhook" json:"webhook" yaml:"webhook"`
	User     UserConfig     `toml:"user" json:"user" yaml:"user"`
	Queue    QueueConfig    `toml:"queue" json:"queue" yaml:"queue"`
	Dispatch DispatchConfig `toml:"dispatch" json:"dispatch" yaml:"dispatch"`
	Stream   StreamConfig   `toml:"stream" json:"stream" yaml:"stream"`
	Storage  StorageConfig  `toml:"storage" json:"storage" yaml:"storage"`
	Session  SessionConfig  `toml:"session" json:"session" yaml:"session"`
	Logging  LoggingConfig  `toml:"logging" json:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" json:"metrics" yaml:"metrics"`
	Tracing  TracingConfig  `toml:"tracing" json:"tracing" yaml:"tracing"`
	Docs     DocsConfig     `toml:"docs" json:"docs" yaml:"docs"`
}

// WebhookConfig points the client at the assistant backend.
type WebhookConfig struct {
	BaseURL       string `toml:"base_url" json:"base_url" yaml:"base_url"`
	ChatEndpoint  string `toml:"chat_endpoint" json:"chat_endpoint" yaml:"chat_endpoint"`
	EmergencyMode bool   `toml:"emergency_mode" json:"emergency_mode" yaml:"emergency_mode"`
	Debug         bool   `toml:"debug" json:"debug" yaml:"debug"`
}

// UserConfig identifies who is chatting. Conversations are stored per user.
type UserConfig struct {
	ID   string `toml:"id" json:"id" yaml:"id"`
	Name string `toml:"name" json:"name" yaml:"name"`
}

// QueueConfig bounds outbound concurrency.
type QueueConfig struct {
	MaxConcurrent int `toml:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent"`
}

// DispatchConfig holds retry defaults and the per-endpoint policy table.
type DispatchConfig struct {
	MaxRetries   int            `toml:"max_retries" json:"max_retries" yaml:"max_retries"`
	TimeoutMs    int            `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
	RetryDelayMs int            `toml:"retry_delay_ms" json:"retry_delay_ms" yaml:"retry_delay_ms"`
	Policies     []PolicyConfig `toml:"policies" json:"policies" yaml:"policies"`
}

// PolicyConfig overrides retry behaviour for endpoints matching Pattern.
// Zero values inherit the dispatch defaults.
type PolicyConfig struct {
	Pattern       string  `toml:"pattern" json:"pattern" yaml:"pattern"`
	MaxAttempts   int     `toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	RetryDelayMs  int     `toml:"retry_delay_ms" json:"retry_delay_ms" yaml:"retry_delay_ms"`
	RatePerSecond float64 `toml:"rate_per_second" json:"rate_per_second" yaml:"rate_per_second"`
}

// StreamConfig sets the reveal cadence.
type StreamConfig struct {
	IntervalMs int `toml:"interval_ms" json:"interval_ms" yaml:"interval_ms"`
}

// StorageConfig selects the conversation backend.
type StorageConfig struct {
	Backend string `toml:"backend" json:"backend" yaml:"backend"` // file or bolt
	Dir     string `toml:"dir" json:"dir" yaml:"dir"`
}

// SessionConfig locates the session-scoped cache database.
type SessionConfig struct {
	CachePath string `toml:"cache_path" json:"cache_path" yaml:"cache_path"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `toml:"level" json:"level" yaml:"level"`
	File  string `toml:"file" json:"file" yaml:"file"`
}

// MetricsConfig enables the Prometheus endpoint. Empty address disables it.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// TracingConfig enables OTLP/HTTP span export.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint    string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`
	ServiceName string `toml:"service_name" json:"service_name" yaml:"service_name"`
}

// DocsConfig configures the document display server.
type DocsConfig struct {
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
	Database   string `toml:"database" json:"database" yaml:"database"`
	RateLimit  int    `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"` // requests per minute per IP
}

// Timeout returns the per-attempt timeout.
func (d DispatchConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the default delay between attempts.
func (d DispatchConfig) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelayMs) * time.Millisecond
}

// Interval returns the reveal tick period.
func (s StreamConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultPolicies is the endpoint policy table used when none is configured.
// Order matters: the first matching pattern wins.
func DefaultPolicies() []PolicyConfig {
	return []PolicyConfig{
		// A duplicated chat submission is worse than a single failure.
		{Pattern: "*chat*", MaxAttempts: 1},
		{Pattern: "*signup*", RetryDelayMs: 5000, RatePerSecond: 1},
		{Pattern: "*register*", RetryDelayMs: 5000, RatePerSecond: 1},
		{Pattern: "*"},
	}
}

// Default returns a Config with default values. Paths are resolved under dir.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".bridgechat"
	}
	return &Config{
		Webhook: WebhookConfig{
			BaseURL:      "http://localhost:5678/webhook",
			ChatEndpoint: "/maritime-chat",
		},
		User:  UserConfig{ID: "local", Name: "Crew"},
		Queue: QueueConfig{MaxConcurrent: 3},
		Dispatch: DispatchConfig{
			MaxRetries:   3,
			TimeoutMs:    30000,
			RetryDelayMs: 2000,
			Policies:     DefaultPolicies(),
		},
		Stream:  StreamConfig{IntervalMs: 45},
		Storage: StorageConfig{Backend: "file", Dir: filepath.Join(dir, "conversations")},
		Session: SessionConfig{CachePath: filepath.Join(dir, "session.db")},
		Logging: LoggingConfig{Level: "info", File: filepath.Join(dir, "bridgechat.log")},
		Tracing: TracingConfig{Endpoint: "localhost:4318", ServiceName: "bridgechat"},
		Docs: DocsConfig{
			ListenAddr: "127.0.0.1:8088",
			Database:   filepath.Join(dir, "documents.db"),
			RateLimit:  120,
		},
	}
}

// fillDefaults fills zero values left by a partial config file.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Webhook.BaseURL == "" {
		cfg.Webhook.BaseURL = d.Webhook.BaseURL
	}
	if cfg.Webhook.ChatEndpoint == "" {
		cfg.Webhook.ChatEndpoint = d.Webhook.ChatEndpoint
	}
	if cfg.User.ID == "" {
		cfg.User.ID = d.User.ID
	}
	if cfg.User.Name == "" {
		cfg.User.Name = d.User.Name
	}
	if cfg.Queue.MaxConcurrent == 0 {
		cfg.Queue.MaxConcurrent = d.Queue.MaxConcurrent
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = d.Dispatch.MaxRetries
	}
	if cfg.Dispatch.TimeoutMs == 0 {
		cfg.Dispatch.TimeoutMs = d.Dispatch.TimeoutMs
	}
	if cfg.Dispatch.RetryDelayMs == 0 {
		cfg.Dispatch.RetryDelayMs = d.Dispatch.RetryDelayMs
	}
	if len(cfg.Dispatch.Policies) == 0 {
		cfg.Dispatch.Policies = d.Dispatch.Policies
	}
	if cfg.Stream.IntervalMs == 0 {
		cfg.Stream.IntervalMs = d.Stream.IntervalMs
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = d.Storage.Backend
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = d.Storage.Dir
	}
	if cfg.Session.CachePath == "" {
		cfg.Session.CachePath = d.Session.CachePath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = d.Logging.File
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = d.Tracing.Endpoint
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = d.Tracing.ServiceName
	}
	if cfg.Docs.ListenAddr == "" {
		cfg.Docs.ListenAddr = d.Docs.ListenAddr
	}
	if cfg.Docs.Database == "" {
		cfg.Docs.Database = d.Docs.Database
	}
	if cfg.Docs.RateLimit == 0 {
		cfg.Docs.RateLimit = d.Docs.RateLimit
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the bridgechat directory, ~/.bridgechat unless
// BRIDGECHAT_HOME is set.
func ConfigDir() (string, error) {
	if dir := os.Getenv("BRIDGECHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".bridgechat"), nil
}

// candidateFiles lists config files in precedence order.
var candidateFiles = []string{"config.toml", "config.json", "config.yaml", "config.yml"}

// FindConfigFile returns the first existing config file in dir, or "".
func FindConfigFile(dir string) string {
	for _, name := range candidateFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the first config file found in ConfigDir, falling back to
// defaults. A .env file in the working directory and BRIDGECHAT_* variables
// are applied on top. A broken config file is reported alongside the
// defaults so the caller can warn and continue.
func Load() (*Config, string, error) {
	LoadDotEnv(".env")

	dir, err := ConfigDir()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, "", err
	}

	path := FindConfigFile(dir)
	if path == "" {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, "", cfg.Validate()
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		fallback := Default()
		fallback.ApplyEnvOverrides()
		return fallback, path, err
	}
	return cfg, path, nil
}

// LoadFromPath loads and validates a single config file. The format is
// chosen by extension; anything unrecognised is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = decodeJSON(cfg, path)
	case ".yaml", ".yml":
		err = decodeYAML(cfg, path)
	default:
		_, err = toml.DecodeFile(path, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func decodeYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes cfg as TOML with owner-only permissions.
func Save(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# bridgechat configuration file\n")
	b.WriteString("# Generated by bridgechat - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, []byte(b.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Dispatch.Policies = append([]PolicyConfig(nil), c.Dispatch.Policies...)
	return &out
}

// String renders the config as TOML for `bridgechat config show`.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return b.String()
}
