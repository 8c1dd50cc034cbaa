// Package main provides the entry point for the pcmfeed CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/charmbracelet/pcmfeed/pkg/pcmsound"
	"github.com/charmbracelet/pcmfeed/ui"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	follow     bool
	tui        bool

	rootCmd = &cobra.Command{
		Use:   "pcmfeed [SOURCE]",
		Short: "Play raw PCM audio, fed as you go",
		Long: paragraph(
			fmt.Sprintf("\nPlay 16-bit PCM through the speakers, %s as the buffer runs low.\n\nSOURCE is a raw s16le file, a WAV file, a zstd-compressed raw file, or - for stdin.",
				keyword("feeding more")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("config") {
				return nil
			}
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("unable to read config file: %w", err)
			}
			return nil
		},
		RunE: execute,
	}
)

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// resolveFormat picks the format to play: the one the container declares,
// or the configured one for raw sources.
func resolveFormat(cmd *cobra.Command, cfg pcmsound.Config, src *source) pcm.Format {
	format := pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if src.format == nil {
		return format
	}
	if (cmd.Flags().Changed("rate") || cmd.Flags().Changed("channels")) && *src.format != format {
		log.Warn("Ignoring format flags, the source declares its own",
			"source_rate", src.format.SampleRate,
			"source_channels", src.format.Channels)
	}
	return *src.format
}

func execute(cmd *cobra.Command, args []string) error {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	if arg == "" {
		// without an argument, stdin must be a pipe
		if yes, err := stdinIsPipe(); err != nil {
			return err
		} else if !yes {
			return cmd.Help()
		}
	}

	cfg, err := pcmsound.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	level, err := pcmsound.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	closer, err := setupLog(level, tui)
	if err != nil {
		return err
	}
	defer func() { _ = closer() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := sourceFromArg(ctx, arg, follow)
	if err != nil {
		return err
	}
	defer src.reader.Close() //nolint:errcheck

	ctl, err := pcmsound.NewController(pcmsound.ControllerOptions{Config: cfg})
	if err != nil {
		return err
	}
	defer func() {
		if err := ctl.Close(); err != nil {
			log.Error("Failed to close player", "error", err)
		}
	}()

	feeder, err := NewFeeder(ctl, resolveFormat(cmd, cfg, src), time.Duration(cfg.Feed.ChunkMillis)*time.Millisecond)
	if err != nil {
		return err
	}
	log.Debug("Starting playback", "source", src.name, "backend", cfg.Device.Backend)

	if !tui {
		return ignoreCanceled(feeder.Run(ctx, src.reader))
	}
	return runTUI(ctx, feeder, ctl, src)
}

// runTUI plays the source with the monitor attached. Whichever finishes
// first stops the other.
func runTUI(ctx context.Context, feeder *Feeder, ctl *pcmsound.Controller, src *source) error {
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.Title = filepath.Base(src.name)
	// keys must not be read from the audio pipe
	uiCfg.InputTTY = src.name == "stdin"

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return ignoreCanceled(feeder.Run(gctx, src.reader))
	})
	g.Go(func() error {
		defer cancel()
		return ui.Run(gctx, uiCfg, ctl)
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().IntP("rate", "r", 16000, "sample rate of raw sources in Hz")
	rootCmd.Flags().IntP("channels", "c", 1, "channel count of raw sources")
	rootCmd.Flags().IntP("threshold", "T", pcmsound.DefaultFeedThreshold, "remaining frames that trigger a refill")
	rootCmd.Flags().Int("chunk", 20, "milliseconds of audio read per feed")
	rootCmd.Flags().StringP("device", "d", string(pcmsound.BackendAuto), "output backend ("+strings.Join(pcmsound.Backends, ", ")+")")
	rootCmd.Flags().String("focus", string(pcmsound.FocusModeNone), "output focus mode (none, lock)")
	rootCmd.Flags().String("log-level", string(pcmsound.LogLevelStandard), "log level ("+strings.Join(pcmsound.LogLevels, ", ")+")")
	rootCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep reading a raw file as it grows")
	rootCmd.Flags().BoolVarP(&tui, "tui", "t", false, "show the buffer monitor")

	// Config bindings
	_ = viper.BindPFlag("sample_rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("channels", rootCmd.Flags().Lookup("channels"))
	_ = viper.BindPFlag("feed_threshold", rootCmd.Flags().Lookup("threshold"))
	_ = viper.BindPFlag("feed.chunk_ms", rootCmd.Flags().Lookup("chunk"))
	_ = viper.BindPFlag("device.backend", rootCmd.Flags().Lookup("device"))
	_ = viper.BindPFlag("focus.mode", rootCmd.Flags().Lookup("focus"))
	_ = viper.BindPFlag("log_level", rootCmd.Flags().Lookup("log-level"))

	rootCmd.AddCommand(configCmd, infoCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "pcmfeed")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "pcmfeed")}, dirs...)
	}

	if c := os.Getenv("PCMFEED_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("pcmfeed")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("pcmfeed")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "pcmfeed.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
