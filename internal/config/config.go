package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jchantrell/ggpktool/internal/bundledggpk"
)

type Config struct {
	GGPK            string `mapstructure:"ggpk"`
	Catalog         string `mapstructure:"catalog"`
	BundleThreshold int64  `mapstructure:"bundle_threshold"`
	CacheEntries    int    `mapstructure:"cache_entries"`
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`
}

// BundleOptions are the container options the configuration asks for.
func (c *Config) BundleOptions() bundledggpk.Options {
	return bundledggpk.Options{
		FlushThreshold: c.BundleThreshold,
		CacheEntries:   c.CacheEntries,
	}
}

// Load initializes and loads configuration from file and GGPKTOOL_*
// environment variables.
func Load(cfgFile string) (*Config, error) {
	viper.SetDefault("ggpk", "Content.ggpk")
	viper.SetDefault("catalog", "ggpk.db")
	viper.SetDefault("bundle_threshold", bundledggpk.DefaultFlushThreshold)
	viper.SetDefault("cache_entries", bundledggpk.DefaultCacheEntries)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")

	viper.SetEnvPrefix("ggpktool")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName("ggpktool")
		viper.SetConfigType("yaml")
	}

	// Config file is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
