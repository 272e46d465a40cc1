package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/rowbench/pkg/codec"
	"github.com/ssargent/rowbench/pkg/scatter"
)

// Config represents the rowbench configuration
type Config struct {
	Servers    string  `yaml:"servers"`
	User       string  `yaml:"user"`
	Password   string  `yaml:"password"`
	RateLimit  float64 `yaml:"rate_limit"`
	Embedded   bool    `yaml:"embedded"`
	DataDir    string  `yaml:"data_dir"`
	Partitions int     `yaml:"partitions"`
	Port       int     `yaml:"port"`
	Encoder    Encoder `yaml:"encoder"`
	Retry      Retry   `yaml:"retry"`
	Scan       Scan    `yaml:"scan"`
	Logging    Logging `yaml:"logging"`
}

// Encoder contains row encoder settings
type Encoder struct {
	BufferSize int `yaml:"buffer_size"`
}

// Retry contains retry settings for procedure calls that fail to reach the server
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Scan contains scatter scan settings
type Scan struct {
	Policy string `yaml:"policy"`
}

// Logging contains logging configuration
type Logging struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Servers:    "localhost",
		RateLimit:  0,
		DataDir:    "./data",
		Partitions: 8,
		Port:       9200,
		Encoder: Encoder{
			BufferSize: codec.DefaultBufferSize,
		},
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   50 * time.Millisecond,
			MaxDelay:    time.Second,
		},
		Scan: Scan{
			Policy: "all",
		},
		Logging: Logging{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// ServerList splits Servers into host[:port] entries
func (c *Config) ServerList() []string {
	var servers []string
	for _, s := range strings.Split(c.Servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}

// Validate checks the configuration for values the binding cannot run with
func (c *Config) Validate() error {
	if !c.Embedded && len(c.ServerList()) == 0 {
		return fmt.Errorf("no servers configured")
	}
	if c.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive, got %d", c.Partitions)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit)
	}
	if c.Encoder.BufferSize <= 0 {
		return fmt.Errorf("encoder.buffer_size must be positive, got %d", c.Encoder.BufferSize)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if _, err := scatter.ParsePolicy(c.Scan.Policy); err != nil {
		return err
	}
	return nil
}

// LoadConfig loads configuration from the specified path.
// Keys missing from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// may hold a password
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a default configuration with a generated password
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	password, err := GenerateSecureKey(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	config.User = "rowbench"
	config.Password = password

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./rowbench.yaml"
	}
	return filepath.Join(homeDir, ".config", "rowbench", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
