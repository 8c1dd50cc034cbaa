package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/charmbracelet/pcmfeed/pkg/pcmsound"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var infoRates = []int{8000, 16000, 22050, 24000, 44100, 48000}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the audio platform and buffer sizing",
	Long: paragraph(fmt.Sprintf("\n%s the detected audio platform, the backend auto mode picks, and the device buffer sizes used for common sample rates.",
		keyword("Show"))),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := pcmsound.LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		report := buildReport(cfg, pcmsound.DetectPlatform())

		fd := int(os.Stdout.Fd()) //nolint:gosec
		if !term.IsTerminal(fd) {
			_, err := fmt.Fprint(cmd.OutOrStdout(), report)
			return err
		}

		width := 80
		if w, _, err := term.GetSize(fd); err == nil && w < width {
			width = w
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return fmt.Errorf("unable to create renderer: %w", err)
		}
		out, err := r.Render(report)
		if err != nil {
			return fmt.Errorf("unable to render report: %w", err)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// sizingRow computes the buffer sizes a session at rate would use on info.
func sizingRow(info *pcmsound.PlatformInfo, rate, channels int) string {
	format := pcm.Format{SampleRate: rate, Channels: channels}
	bpf := format.BytesPerFrame()
	minBytes := pcm.AlignToFrameSize(rate*bpf*info.MinBufferMillis()/1000, bpf)
	target := pcm.ComputeTargetBufferBytes(minBytes, rate, bpf)

	return fmt.Sprintf("| %s Hz | %s | %s | %s |",
		humanize.Comma(int64(rate)),
		humanize.IBytes(uint64(minBytes)), //nolint:gosec
		humanize.IBytes(uint64(target)),   //nolint:gosec
		format.Duration(target))
}

// buildReport renders the platform and sizing report as markdown.
func buildReport(cfg pcmsound.Config, info *pcmsound.PlatformInfo) string {
	var b strings.Builder
	format := pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}

	b.WriteString("# pcmfeed\n\n")
	b.WriteString("## Platform\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| OS | %s/%s |\n", info.OS, info.Arch)
	fmt.Fprintf(&b, "| Audio subsystem | %s |\n", info.AudioSubsystem)
	fmt.Fprintf(&b, "| Output device | %s |\n", yesNo(info.HasAudioDevice))
	fmt.Fprintf(&b, "| CI | %s |\n", yesNo(info.IsCI))
	fmt.Fprintf(&b, "| Auto backend | `%s` |\n", info.PreferredBackend())
	fmt.Fprintf(&b, "| Configured backend | `%s` |\n\n", cfg.Device.Backend)

	b.WriteString("## Feeding\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Raw format | %d Hz, %d ch |\n", cfg.SampleRate, cfg.Channels)
	fmt.Fprintf(&b, "| Feed threshold | %s frames (%s) |\n",
		humanize.Comma(int64(cfg.FeedThreshold)), format.Duration(cfg.FeedThreshold*format.BytesPerFrame()))
	fmt.Fprintf(&b, "| Read chunk | %d ms |\n", cfg.Feed.ChunkMillis)
	fmt.Fprintf(&b, "| Focus | %s |\n\n", cfg.Focus.Mode)

	fmt.Fprintf(&b, "## Device buffers (%d ch, %d ms minimum)\n\n", cfg.Channels, info.MinBufferMillis())
	b.WriteString("| Rate | Minimum | Target | Holds |\n|---:|---:|---:|---:|\n")
	for _, rate := range infoRates {
		b.WriteString(sizingRow(info, rate, cfg.Channels) + "\n")
	}
	return b.String()
}
