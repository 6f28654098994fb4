package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	GitHub  GitHubConfig  `yaml:"github"`
	Poller  PollerConfig  `yaml:"poller"`
	Agent   AgentConfig   `yaml:"agent"`
	Store   StoreConfig   `yaml:"store"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds agent transcript log settings.
type LoggingConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// GitHubConfig holds GitHub API settings.
type GitHubConfig struct {
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// PollerConfig holds PR polling settings.
type PollerConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	Autostart       bool `yaml:"autostart"`
	// StaleSessionMinutes is how long a review session may run before a
	// poll cycle marks it failed. 0 disables reaping.
	StaleSessionMinutes int `yaml:"stale_session_minutes"`
}

// AgentConfig holds review agent settings.
type AgentConfig struct {
	// Mode selects how the agent is invoked: "cli" spawns the command
	// as a subprocess, "docker" runs it in a container.
	Mode           string `yaml:"mode"`
	Command        string `yaml:"command"`
	Image          string `yaml:"image"`
	AuthDir        string `yaml:"auth_dir"`
	TimeoutMinutes int    `yaml:"timeout_minutes"` // 0 means no timeout
}

// StoreConfig holds persistent store settings.
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3001,
		},
		Logging: LoggingConfig{
			Dir:           filepath.Join(home, ".revue", "logs"),
			RetentionDays: 30,
		},
		Poller: PollerConfig{
			IntervalSeconds:     60,
			StaleSessionMinutes: 120,
		},
		Agent: AgentConfig{
			Mode:    "cli",
			Command: "opencode",
		},
		Store: StoreConfig{
			Dir: filepath.Join(home, ".revue"),
		},
	}
}

// Load reads and parses the config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Substitute environment variables
	data = envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// DBPath returns the SQLite database path under the store directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Store.Dir, "revue.db")
}
