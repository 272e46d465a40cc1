package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "localhost", config.Servers)
	assert.Equal(t, float64(0), config.RateLimit)
	assert.Equal(t, "./data", config.DataDir)
	assert.Equal(t, 8, config.Partitions)
	assert.Equal(t, 9200, config.Port)
	assert.Equal(t, 1024*1024, config.Encoder.BufferSize)
	assert.Equal(t, 3, config.Retry.MaxAttempts)
	assert.Equal(t, "all", config.Scan.Policy)
	assert.Equal(t, "info", config.Logging.Level)
	assert.NoError(t, config.Validate())
}

func TestConfig_ServerList(t *testing.T) {
	config := DefaultConfig()
	config.Servers = " node1:9200, node2 ,,node3:9300 "
	assert.Equal(t, []string{"node1:9200", "node2", "node3:9300"}, config.ServerList())

	config.Servers = ""
	assert.Empty(t, config.ServerList())
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no servers", func(c *Config) { c.Servers = " , " }},
		{"zero partitions", func(c *Config) { c.Partitions = 0 }},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }},
		{"zero buffer", func(c *Config) { c.Encoder.BufferSize = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"bad scan policy", func(c *Config) { c.Scan.Policy = "some" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(config)
			assert.Error(t, config.Validate())
		})
	}

	t.Run("embedded needs no servers", func(t *testing.T) {
		config := DefaultConfig()
		config.Servers = ""
		config.Embedded = true
		assert.NoError(t, config.Validate())
	})
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64)

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("load saved config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		expected := DefaultConfig()
		expected.Servers = "db1:9200,db2:9200"
		expected.User = "bench"
		expected.Password = "secret"
		expected.RateLimit = 5000
		expected.Partitions = 16
		expected.Retry.BaseDelay = 10 * time.Millisecond
		expected.Scan.Policy = "quorum:2"
		expected.Logging.Level = "debug"

		require.NoError(t, SaveConfig(expected, configPath))

		loaded, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, expected, loaded)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "partial.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("servers: db9\nretry:\n  base_delay: 250ms\n"), 0644))

		loaded, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, "db9", loaded.Servers)
		assert.Equal(t, 250*time.Millisecond, loaded.Retry.BaseDelay)
		assert.Equal(t, 3, loaded.Retry.MaxAttempts)
		assert.Equal(t, 8, loaded.Partitions)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644))

		_, err := LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := DefaultConfig()

	require.NoError(t, SaveConfig(config, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	// a regular file where the config directory should be
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0644))

	err := SaveConfig(DefaultConfig(), filepath.Join(parent, "config.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}

func TestBootstrapConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	config, err := BootstrapConfig(configPath, "/custom/data/dir")
	require.NoError(t, err)

	assert.Equal(t, "/custom/data/dir", config.DataDir)
	assert.Equal(t, "rowbench", config.User)
	_, err = hex.DecodeString(config.Password)
	assert.NoError(t, err)
	assert.Len(t, config.Password, 64)

	assert.True(t, ConfigExists(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "rowbench")
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := DefaultConfig()
	config.Embedded = true
	config.Retry.MaxDelay = 3 * time.Second

	data, err := yaml.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_delay: 3s")

	var unmarshalled Config
	require.NoError(t, yaml.Unmarshal(data, &unmarshalled))
	assert.Equal(t, config, &unmarshalled)
}
