package pcmsound

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	"github.com/sahilm/fuzzy"
)

// FocusMode selects a FocusNegotiator.
type FocusMode string

const (
	// FocusModeNone grants focus unconditionally.
	FocusModeNone FocusMode = "none"
	// FocusModeLock serializes output across processes with a lock file.
	FocusModeLock FocusMode = "lock"
)

// Config holds every setting of the playback stack. Defaults come from the
// envDefault tags; PCMFEED_* environment variables override them.
type Config struct {
	// Format used by the CLI when the source does not carry one.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate" env:"PCMFEED_SAMPLE_RATE" envDefault:"16000"`
	Channels   int `yaml:"channels"    mapstructure:"channels"    env:"PCMFEED_CHANNELS"    envDefault:"1"`

	// Remaining frames at which OnFeedSamples fires.
	FeedThreshold int `yaml:"feed_threshold" mapstructure:"feed_threshold" env:"PCMFEED_FEED_THRESHOLD" envDefault:"8000"`

	// none, error, standard or verbose.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" env:"PCMFEED_LOG_LEVEL" envDefault:"standard"`

	Device DeviceSettings `yaml:"device" mapstructure:"device" envPrefix:"PCMFEED_DEVICE_"`
	Focus  FocusConfig    `yaml:"focus"  mapstructure:"focus"  envPrefix:"PCMFEED_FOCUS_"`
	Feed   FeedConfig     `yaml:"feed"   mapstructure:"feed"   envPrefix:"PCMFEED_FEED_"`
}

// DeviceSettings selects and tunes the output backend.
type DeviceSettings struct {
	// auto, oto, pulse or mock.
	Backend string `yaml:"backend" mapstructure:"backend" env:"BACKEND" envDefault:"auto"`

	// Let queued audio finish before the device is closed on release.
	DrainOnRelease bool          `yaml:"drain_on_release" mapstructure:"drain_on_release" env:"DRAIN_ON_RELEASE" envDefault:"true"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"    mapstructure:"drain_timeout"    env:"DRAIN_TIMEOUT"    envDefault:"2s"`

	// Pin the playback goroutine to a thread and raise its priority.
	Realtime bool `yaml:"realtime" mapstructure:"realtime" env:"REALTIME" envDefault:"true"`
}

// FocusConfig configures output focus negotiation.
type FocusConfig struct {
	Mode     FocusMode `yaml:"mode"      mapstructure:"mode"      env:"MODE"      envDefault:"none"`
	LockFile string    `yaml:"lock_file" mapstructure:"lock_file" env:"LOCK_FILE" envDefault:"~/.cache/pcmfeed/output.lock"`
	Usage    string    `yaml:"usage"     mapstructure:"usage"     env:"USAGE"     envDefault:"assistant"`
	Content  string    `yaml:"content"   mapstructure:"content"   env:"CONTENT"   envDefault:"speech"`
	MayDuck  bool      `yaml:"may_duck"  mapstructure:"may_duck"  env:"MAY_DUCK"  envDefault:"true"`
}

// FeedConfig tunes how the CLI feeder reads its source.
type FeedConfig struct {
	ChunkMillis int `yaml:"chunk_ms" mapstructure:"chunk_ms" env:"CHUNK_MS" envDefault:"20"`
}

// DefaultConfig returns the configuration defined by the environment, or the
// built-in defaults when nothing is set.
func DefaultConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return cfg, nil
}

// Request returns the focus request described by the config, or
// DefaultFocusRequest when neither usage nor content is set.
func (c FocusConfig) Request() FocusRequest {
	if c.Usage == "" && c.Content == "" {
		return DefaultFocusRequest()
	}
	return FocusRequest{Usage: c.Usage, Content: c.Content, MayDuck: c.MayDuck}
}

// Validate checks ranges and names, expanding the lock file path in place.
func (c *Config) Validate() error {
	var errs []error

	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channels must be positive, got %d", c.Channels))
	}
	if c.FeedThreshold < 0 {
		errs = append(errs, fmt.Errorf("feed_threshold must not be negative, got %d", c.FeedThreshold))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if _, err := ParseBackend(c.Device.Backend); err != nil {
		errs = append(errs, withSuggestion(err, c.Device.Backend, Backends))
	}
	if c.Device.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("device.drain_timeout must not be negative, got %s", c.Device.DrainTimeout))
	}

	switch c.Focus.Mode {
	case FocusModeNone, "":
		c.Focus.Mode = FocusModeNone
	case FocusModeLock:
		if c.Focus.LockFile == "" {
			errs = append(errs, errors.New("focus.lock_file is required in lock mode"))
			break
		}
		path, err := homedir.Expand(c.Focus.LockFile)
		if err != nil {
			errs = append(errs, fmt.Errorf("focus.lock_file: %w", err))
			break
		}
		c.Focus.LockFile = path
	default:
		err := fmt.Errorf("unknown focus mode %q", c.Focus.Mode)
		errs = append(errs, withSuggestion(err, string(c.Focus.Mode), []string{string(FocusModeNone), string(FocusModeLock)}))
	}

	if c.Feed.ChunkMillis <= 0 {
		errs = append(errs, fmt.Errorf("feed.chunk_ms must be positive, got %d", c.Feed.ChunkMillis))
	}

	return errors.Join(errs...)
}

// withSuggestion appends the closest known name to err.
func withSuggestion(err error, input string, known []string) error {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return err
	}
	matches := fuzzy.Find(input, known)
	if len(matches) == 0 {
		return fmt.Errorf("%w (valid: %s)", err, strings.Join(known, ", "))
	}
	return fmt.Errorf("%w, did you mean %q?", err, matches[0].Str)
}

// EngineOptions builds engine options for device from the config.
func (c Config) EngineOptions(device DeviceOutput, focus FocusNegotiator, sink NotificationSink) EngineOptions {
	return EngineOptions{
		Device:         device,
		Focus:          focus,
		Sink:           sink,
		Realtime:       c.Device.Realtime,
		DrainOnRelease: c.Device.DrainOnRelease,
		DrainTimeout:   c.Device.DrainTimeout,
	}
}
