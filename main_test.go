package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/charmbracelet/pcmfeed/pkg/pcmsound"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestDefaultConfigFileMatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcmfeed.yml")
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	want, err := pcmsound.DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	got := pcmsound.LoadConfigFromViper(viperFromFile(path), pcmsound.Config{})
	if got != want {
		t.Errorf("default config file = %+v, want %+v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("default config file does not validate: %v", err)
	}
}

func TestEnsureConfigFile(t *testing.T) {
	saved := configFile
	t.Cleanup(func() { configFile = saved })

	configFile = filepath.Join(t.TempDir(), "nested", "pcmfeed.yml")
	if err := ensureConfigFile(); err != nil {
		t.Fatalf("ensureConfigFile() error = %v", err)
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != defaultConfig {
		t.Error("created config file does not hold the default config")
	}

	// An existing file is left alone.
	if err := os.WriteFile(configFile, []byte("channels: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ensureConfigFile(); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(configFile); string(data) != "channels: 2\n" {
		t.Error("ensureConfigFile() overwrote an existing file")
	}

	configFile = filepath.Join(t.TempDir(), "pcmfeed.toml")
	if err := ensureConfigFile(); err == nil {
		t.Error("ensureConfigFile() should reject a .toml file")
	}
}

func TestPrintEffectiveConfig(t *testing.T) {
	var buf bytes.Buffer
	if err := printEffectiveConfig(&buf); err != nil {
		t.Fatalf("printEffectiveConfig() error = %v", err)
	}
	for _, want := range []string{"sample_rate:", "feed_threshold:", "backend:", "chunk_ms:"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestViperEnvBinding(t *testing.T) {
	t.Setenv("PCMFEED_DEVICE_BACKEND", "mock")
	if got := viper.GetString("device.backend"); got != "mock" {
		t.Errorf("device.backend = %q, want mock from the environment", got)
	}
}

func TestResolveFormat(t *testing.T) {
	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().Int("rate", 16000, "")
		cmd.Flags().Int("channels", 1, "")
		return cmd
	}
	cfg := pcmsound.Config{SampleRate: 16000, Channels: 1}

	if got := resolveFormat(newCmd(), cfg, &source{}); got != (pcm.Format{SampleRate: 16000, Channels: 1}) {
		t.Errorf("raw source format = %+v, want the configured one", got)
	}

	wav := &pcm.Format{SampleRate: 44100, Channels: 2}
	cmd := newCmd()
	_ = cmd.Flags().Set("rate", "8000")
	if got := resolveFormat(cmd, cfg, &source{format: wav}); got != *wav {
		t.Errorf("WAV source format = %+v, want %+v", got, *wav)
	}
}

func TestBuildReport(t *testing.T) {
	cfg := pcmsound.Config{SampleRate: 16000, Channels: 1, FeedThreshold: 8000, Feed: pcmsound.FeedConfig{ChunkMillis: 20}}
	cfg.Device.Backend = "auto"
	cfg.Focus.Mode = pcmsound.FocusModeNone
	info := &pcmsound.PlatformInfo{
		OS:             pcmsound.PlatformLinux,
		Arch:           "amd64",
		AudioSubsystem: pcmsound.AudioSubsystemALSA,
		HasAudioDevice: true,
	}

	report := buildReport(cfg, info)
	for _, want := range []string{
		"linux/amd64",
		"| Auto backend | `oto` |",
		"8,000 frames (500ms)",
		"| 16,000 Hz |",
		"| 48,000 Hz |",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestSizingRow(t *testing.T) {
	info := &pcmsound.PlatformInfo{OS: pcmsound.PlatformLinux, AudioSubsystem: pcmsound.AudioSubsystemALSA}
	// 50ms at 16 kHz mono is 1600 bytes; four times that beats the 160ms
	// target of 5120 bytes.
	row := sizingRow(info, 16000, 1)
	if !strings.Contains(row, "1.6 KiB") || !strings.Contains(row, "6.3 KiB") || !strings.Contains(row, "200ms") {
		t.Errorf("sizingRow() = %q", row)
	}
}
