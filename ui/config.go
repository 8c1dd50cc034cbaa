package ui

import "time"

// Config contains monitor-specific configuration.
type Config struct {
	// Shown in the header, usually the source name.
	Title string

	// How often the monitor samples the engine.
	RefreshInterval time.Duration `env:"PCMFEED_UI_REFRESH" envDefault:"100ms"`

	// Frames added or removed by the +/- keys.
	ThresholdStep int `env:"PCMFEED_UI_THRESHOLD_STEP" envDefault:"1000"`

	// Read keys from the terminal rather than stdin.
	InputTTY bool

	AltScreen bool `env:"PCMFEED_UI_ALT_SCREEN" envDefault:"false"`
}
