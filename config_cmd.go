package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/pkg/pcmsound"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# format of raw sources; WAV files carry their own
sample_rate: 16000
channels: 1
# remaining frames at which more audio is requested
feed_threshold: 8000
# none, error, standard or verbose
log_level: "standard"

device:
  # auto, oto, pulse or mock
  backend: "auto"
  # let queued audio finish before the device is closed
  drain_on_release: true
  drain_timeout: "2s"
  # pin the playback goroutine to a thread and raise its priority
  realtime: true

focus:
  # none, or lock to keep other pcmfeed processes quiet while playing
  mode: "none"
  lock_file: "~/.cache/pcmfeed/output.lock"
  usage: "assistant"
  content: "speech"
  may_duck: true

feed:
  # milliseconds of audio read per feed
  chunk_ms: 20
`

var printConfig bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the pcmfeed config file",
	Long:    paragraph(fmt.Sprintf("\n%s the pcmfeed config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("pcmfeed config\npcmfeed config --config path/to/config.yml\npcmfeed config --print"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if printConfig {
			return printEffectiveConfig(cmd.OutOrStdout())
		}

		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("pcmfeed", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		if _, err := pcmsound.LoadConfig(viperFromFile(configFile)); err != nil {
			log.Warn("The edited config does not validate", "error", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration and exit")
}

// viperFromFile reads path into a fresh viper instance.
func viperFromFile(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "path", path, "err", err)
	}
	return v
}

// printEffectiveConfig writes the merged environment, file and flag
// configuration.
func printEffectiveConfig(w io.Writer) error {
	cfg, err := pcmsound.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("unable to write config: %w", err)
	}
	return nil
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
