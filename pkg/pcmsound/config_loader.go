package pcmsound

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LoadConfigFromViper overlays every key that v has explicitly set (config
// file, changed flag or environment) onto base. Keys v only knows a default
// for leave base untouched.
func LoadConfigFromViper(v *viper.Viper, base Config) Config {
	if v == nil {
		v = viper.GetViper()
	}
	cfg := base

	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setInt("sample_rate", &cfg.SampleRate)
	setInt("channels", &cfg.Channels)
	setInt("feed_threshold", &cfg.FeedThreshold)
	setString("log_level", &cfg.LogLevel)

	setString("device.backend", &cfg.Device.Backend)
	setBool("device.drain_on_release", &cfg.Device.DrainOnRelease)
	if v.IsSet("device.drain_timeout") {
		cfg.Device.DrainTimeout = v.GetDuration("device.drain_timeout")
	}
	setBool("device.realtime", &cfg.Device.Realtime)

	if v.IsSet("focus.mode") {
		cfg.Focus.Mode = FocusMode(v.GetString("focus.mode"))
	}
	setString("focus.lock_file", &cfg.Focus.LockFile)
	setString("focus.usage", &cfg.Focus.Usage)
	setString("focus.content", &cfg.Focus.Content)
	setBool("focus.may_duck", &cfg.Focus.MayDuck)

	setInt("feed.chunk_ms", &cfg.Feed.ChunkMillis)

	if used := v.ConfigFileUsed(); used != "" {
		log.Debug("Loaded configuration", "path", used)
	}
	return cfg
}

// LoadConfig reads the environment and then v, and validates the result.
func LoadConfig(v *viper.Viper) (Config, error) {
	base, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}
	cfg := LoadConfigFromViper(v, base)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// YAML renders the config in the config file format.
func (c Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
