package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. AUBOUTIQUE_SERVER_TCP_PORT.
const EnvPrefix = "AUBOUTIQUE"

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server ServerSection `toml:"server" envconfig:"SERVER"`
	Limits LimitsSection `toml:"limits" envconfig:"LIMITS"`
	Policy PolicySection `toml:"policy" envconfig:"POLICY"`
}

type ServerSection struct {
	TCPPort      int    `toml:"tcp_port" envconfig:"TCP_PORT"`
	HTTPPort     int    `toml:"http_port" envconfig:"HTTP_PORT"`
	MetricsPort  int    `toml:"metrics_port" envconfig:"METRICS_PORT"`
	DatabasePath string `toml:"database_path" envconfig:"DATABASE_PATH"`
	Debug        bool   `toml:"debug" envconfig:"DEBUG"`
}

type LimitsSection struct {
	WriteTimeoutSeconds int `toml:"write_timeout_seconds" envconfig:"WRITE_TIMEOUT_SECONDS"`
	IdleTimeoutSeconds  int `toml:"idle_timeout_seconds" envconfig:"IDLE_TIMEOUT_SECONDS"`
	ReplyCacheSize      int `toml:"reply_cache_size" envconfig:"REPLY_CACHE_SIZE"`
	MaxMessageLength    int `toml:"max_message_length" envconfig:"MAX_MESSAGE_LENGTH"`
}

type PolicySection struct {
	RequireLogin bool `toml:"require_login" envconfig:"REQUIRE_LOGIN"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			TCPPort:      5555,
			HTTPPort:     0,
			MetricsPort:  0,
			DatabasePath: "~/.auboutique/auboutique.db",
		},
		Limits: LimitsSection{
			WriteTimeoutSeconds: 5,
			IdleTimeoutSeconds:  0,
			ReplyCacheSize:      64,
			MaxMessageLength:    4096,
		},
		Policy: PolicySection{
			RequireLogin: true,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found,
// and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	config := DefaultTOMLConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// A read-only home still gets a working server
		_ = writeDefaultConfig(path)
	} else if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(&config); err != nil {
		return TOMLConfig{}, err
	}
	return config, nil
}

// applyEnvOverrides overrides fields whose AUBOUTIQUE_SECTION_KEY variable is
// set. Unset variables leave the loaded value alone.
func applyEnvOverrides(config *TOMLConfig) error {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := `# AUBoutique Server Configuration
# This file was auto-generated with default values
# Restart the server for changes to take effect
#
# Environment variables can override these settings:
# AUBOUTIQUE_SECTION_KEY (e.g., AUBOUTIQUE_SERVER_TCP_PORT=6000)

[server]
# Port for TCP connections (the positional port argument takes precedence)
tcp_port = 5555

# Port for the WebSocket endpoint (/ws). Set to 0 to disable
http_port = 0

# Port for /metrics and /health (internal only). Set to 0 to disable
metrics_port = 0

# Path to SQLite database file
database_path = "~/.auboutique/auboutique.db"

# Verbose per-frame logging
debug = false

[limits]
# Seconds a push to a recipient may block before delivery is considered failed
write_timeout_seconds = 5

# Close connections that send nothing for this many seconds (0 = never)
idle_timeout_seconds = 0

# Answered requests remembered per connection for retry deduplication
reply_cache_size = 64

# Maximum chat message length in bytes
max_message_length = 4096

[policy]
# Require a logged-in session for chat and catalog writes, acting as yourself
require_login = true
`
	return os.WriteFile(path, []byte(content), 0644)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	TCPPort          int
	HTTPPort         int // WebSocket endpoint (0 = disabled)
	MetricsPort      int // /metrics and /health (0 = disabled)
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration // 0 = no idle timeout
	ReplyCacheSize   int
	MaxMessageLength int
	RequireLogin     bool
	Debug            bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		TCPPort:          5555,
		WriteTimeout:     5 * time.Second,
		ReplyCacheSize:   64,
		MaxMessageLength: 4096,
		RequireLogin:     true,
	}
}

// ToServerConfig converts TOMLConfig to ServerConfig
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}
	cfg.HTTPPort = c.Server.HTTPPort
	cfg.MetricsPort = c.Server.MetricsPort
	cfg.Debug = c.Server.Debug

	if c.Limits.WriteTimeoutSeconds > 0 {
		cfg.WriteTimeout = time.Duration(c.Limits.WriteTimeoutSeconds) * time.Second
	}
	if c.Limits.IdleTimeoutSeconds > 0 {
		cfg.IdleTimeout = time.Duration(c.Limits.IdleTimeoutSeconds) * time.Second
	}
	if c.Limits.ReplyCacheSize > 0 {
		cfg.ReplyCacheSize = c.Limits.ReplyCacheSize
	}
	if c.Limits.MaxMessageLength > 0 {
		cfg.MaxMessageLength = c.Limits.MaxMessageLength
	}
	cfg.RequireLogin = c.Policy.RequireLogin

	return cfg
}

// GetDatabasePath returns the database path with ~ expanded
func (c *TOMLConfig) GetDatabasePath() (string, error) {
	return expandHome(c.Server.DatabasePath)
}
