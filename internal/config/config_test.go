package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	App      App           `mapstructure:"app"`
	Interval time.Duration `mapstructure:"interval"`
	Name     string        `mapstructure:"name"`
}

func loadTest() (*testConfig, error) {
	return Load(&testConfig{}, func(v *viper.Viper) {
		v.SetDefault("interval", "30s")
		v.SetDefault("name", "coordinator")
		Setup(v, "app")
	})
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadTest()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, "coordinator", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.App.ShutdownTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("INTERVAL", "5s")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "1m")

	cfg, err := loadTest()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, time.Minute, cfg.App.ShutdownTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: from-file\napp:\n  instance_id: node-1\n"), 0o600))
	t.Setenv(ConfigFileEnv, file)

	cfg, err := loadTest()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Name)
	assert.Equal(t, "node-1", cfg.App.InstanceID)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := loadTest()
	require.Error(t, err)
}
