package pcmsound

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig() error = %v", err)
	}
	if cfg.FeedThreshold != DefaultFeedThreshold {
		t.Errorf("FeedThreshold = %d, want %d", cfg.FeedThreshold, DefaultFeedThreshold)
	}
	if cfg.Device.Backend != "auto" || cfg.Device.DrainTimeout != 2*time.Second {
		t.Errorf("Device = %+v", cfg.Device)
	}
	if cfg.Focus.Request() != DefaultFocusRequest() {
		t.Errorf("focus request = %+v, want default", cfg.Focus.Request())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestDefaultConfigFromEnvironment(t *testing.T) {
	t.Setenv("PCMFEED_SAMPLE_RATE", "44100")
	t.Setenv("PCMFEED_DEVICE_BACKEND", "mock")
	t.Setenv("PCMFEED_FOCUS_MODE", "lock")
	t.Setenv("PCMFEED_FEED_CHUNK_MS", "50")

	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig() error = %v", err)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.SampleRate)
	}
	if cfg.Device.Backend != "mock" {
		t.Errorf("Backend = %q, want mock", cfg.Device.Backend)
	}
	if cfg.Focus.Mode != FocusModeLock {
		t.Errorf("Focus.Mode = %q, want lock", cfg.Focus.Mode)
	}
	if cfg.Feed.ChunkMillis != 50 {
		t.Errorf("ChunkMillis = %d, want 50", cfg.Feed.ChunkMillis)
	}
}

func TestLoadConfigFromViperOverlaysSetKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pcmfeed.yml")
	content := `
sample_rate: 22050
device:
  backend: pulse
  drain_timeout: 500ms
focus:
  may_duck: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	base := testConfig()
	cfg := LoadConfigFromViper(v, base)

	if cfg.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", cfg.SampleRate)
	}
	if cfg.Device.Backend != "pulse" {
		t.Errorf("Backend = %q, want pulse", cfg.Device.Backend)
	}
	if cfg.Device.DrainTimeout != 500*time.Millisecond {
		t.Errorf("DrainTimeout = %v, want 500ms", cfg.Device.DrainTimeout)
	}
	if cfg.Focus.MayDuck {
		t.Error("MayDuck should be overridden to false")
	}
	// Keys missing from the file keep their base values.
	if cfg.Channels != base.Channels || cfg.FeedThreshold != base.FeedThreshold || cfg.Focus.Usage != base.Focus.Usage {
		t.Errorf("unset keys changed: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, "sample_rate"},
		{"zero channels", func(c *Config) { c.Channels = 0 }, "channels"},
		{"negative threshold", func(c *Config) { c.FeedThreshold = -1 }, "feed_threshold"},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, "unknown log level"},
		{"backend typo", func(c *Config) { c.Device.Backend = "puls" }, `did you mean "pulse"`},
		{"unknown backend", func(c *Config) { c.Device.Backend = "zzz" }, "valid: auto, oto, pulse, mock"},
		{"focus typo", func(c *Config) { c.Focus.Mode = "lck" }, `did you mean "lock"`},
		{"lock without file", func(c *Config) {
			c.Focus.Mode = FocusModeLock
			c.Focus.LockFile = ""
		}, "lock_file"},
		{"zero chunk", func(c *Config) { c.Feed.ChunkMillis = 0 }, "chunk_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateExpandsLockFile(t *testing.T) {
	cfg := testConfig()
	cfg.Focus.Mode = FocusModeLock
	cfg.Focus.LockFile = "~/pcmfeed.lock"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if strings.HasPrefix(cfg.Focus.LockFile, "~") {
		t.Errorf("LockFile = %q, want home expanded", cfg.Focus.LockFile)
	}
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Device.DrainTimeout = 1500 * time.Millisecond

	data, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	if !strings.Contains(string(data), "drain_timeout: 1.5s") {
		t.Errorf("durations should render as strings:\n%s", data)
	}

	var back Config
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back != cfg {
		t.Errorf("round trip = %+v, want %+v", back, cfg)
	}
}
