package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/ggpktool/internal/bundledggpk"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ggpktool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "Content.ggpk", cfg.GGPK)
	assert.Equal(t, "ggpk.db", cfg.Catalog)
	assert.Equal(t, int64(bundledggpk.DefaultFlushThreshold), cfg.BundleThreshold)
	assert.Equal(t, bundledggpk.DefaultCacheEntries, cfg.CacheEntries)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("GGPKTOOL_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "ggpk: /games/poe/Content.ggpk\nbundle_threshold: 1024\ncache_entries: 0\nlog_format: json\n"))
	require.NoError(t, err)

	assert.Equal(t, "/games/poe/Content.ggpk", cfg.GGPK)
	assert.Equal(t, int64(1024), cfg.BundleThreshold)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)

	opts := cfg.BundleOptions()
	assert.Equal(t, int64(1024), opts.FlushThreshold)
	assert.Zero(t, opts.CacheEntries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty ggpk", "ggpk: \"\"\n"},
		{"zero threshold", "bundle_threshold: 0\n"},
		{"negative cache", "cache_entries: -1\n"},
		{"log level", "log_level: verbose\n"},
		{"log format", "log_format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)

			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
