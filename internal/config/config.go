// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/myk-org/hooktrail/consts"
	"github.com/myk-org/hooktrail/internal/logstore"
	"github.com/myk-org/hooktrail/internal/query"
	"github.com/myk-org/hooktrail/internal/stream"
	"github.com/myk-org/hooktrail/pkg/logger"
	"github.com/myk-org/hooktrail/pkg/telemetry"
)

// Default configuration values
const (
	defaultLogDir         = "./data/logs"
	defaultTokenExpiry    = 24
	defaultOTLPEndpoint   = "localhost:4317"
	defaultPrometheusPort = 9090
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Auth      AuthConfig       `yaml:"auth"`
	Store     StoreConfig      `yaml:"store"`
	Query     QueryConfig      `yaml:"query"`
	Stream    StreamConfig     `yaml:"stream"`
	Logging   logger.Config    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Debug       bool     `yaml:"debug"`
	CORSOrigins []string `yaml:"cors_origins"` // Allowed CORS origins whitelist
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Username     string `yaml:"username"`      // Login username
	PasswordHash string `yaml:"password_hash"` // Login password (bcrypt hash)
	JWTSecret    string `yaml:"jwt_secret"`    // JWT signing secret
	TokenExpiry  int    `yaml:"expiry_hours"`  // Token expiration in hours
}

// StoreConfig holds the log store configuration
type StoreConfig struct {
	// Dir is the directory holding the webhook log and its daily
	// context summaries
	Dir string `yaml:"dir"`
	// MaxSizeMB is the active file size threshold that triggers rotation
	MaxSizeMB int `yaml:"max_size_mb"`
	// MaxBackups is the number of rotated backup files to retain
	MaxBackups int `yaml:"max_backups"`
	// RetentionDays is how long daily context files are kept
	RetentionDays int `yaml:"retention_days"`
}

// QueryConfig holds query engine limits
type QueryConfig struct {
	// ScanCap bounds the lines one query may examine
	ScanCap int `yaml:"scan_cap"`
}

// StreamConfig holds the live tail broker configuration
type StreamConfig struct {
	// BufferSize is the per-subscriber buffer capacity
	BufferSize int `yaml:"buffer_size"`
}

// StoreConfig converts to the log store's own config type.
func (c *StoreConfig) StoreConfig() logstore.Config {
	return logstore.Config{
		Dir:        c.Dir,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  "0.0.0.0",
			Port:  8080,
			Debug: false,
			CORSOrigins: []string{
				"http://localhost:8091",
			},
		},
		Auth: AuthConfig{
			Username:    "admin",
			TokenExpiry: defaultTokenExpiry,
		},
		Store: StoreConfig{
			Dir:           defaultLogDir,
			MaxSizeMB:     logstore.DefaultMaxSizeMB,
			MaxBackups:    logstore.DefaultMaxBackups,
			RetentionDays: logstore.DefaultRetentionDays,
		},
		Query: QueryConfig{
			ScanCap: query.DefaultScanCap,
		},
		Stream: StreamConfig{
			BufferSize: stream.DefaultBufferSize,
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
			Compress:   false,
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			ServiceName: consts.ServiceName,
			OTLP: telemetry.OTLPConfig{
				Enabled:  false,
				Endpoint: defaultOTLPEndpoint,
				Insecure: true,
			},
			Prometheus: telemetry.PrometheusConfig{
				Enabled: false,
				Port:    defaultPrometheusPort,
			},
		},
	}
}

// Load loads configuration from a YAML file with environment variable expansion
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Only matches ${VAR_NAME} format (not $VAR_NAME) to avoid conflicts with
// special characters like bcrypt hashes.
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		// Support default values: ${VAR_NAME:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]

		if value := os.Getenv(varName); value != "" {
			return value
		}

		if len(parts) > 1 {
			return parts[1]
		}

		return ""
	})
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
