// Package ui implements the terminal monitor shown while pcmfeed plays.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/pcmfeed/pkg/pcmsound"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
)

// Source is what the monitor observes and adjusts.
type Source interface {
	Status() pcmsound.Status
	SetFeedThreshold(frames int) error
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}).
			Width(14)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#4A4A4A"})

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	stateColors = map[pcmsound.EngineState]lipgloss.TerminalColor{
		pcmsound.StateIdle:       lipgloss.Color("241"),
		pcmsound.StateConfigured: lipgloss.Color("214"),
		pcmsound.StateRunning:    lipgloss.Color("#04B575"),
		pcmsound.StateDraining:   lipgloss.Color("39"),
	}
)

const (
	defaultRefresh = 100 * time.Millisecond
	maxWidth       = 80
)

type tickMsg time.Time

type model struct {
	cfg    Config
	src    Source
	status pcmsound.Status
	bar    progress.Model
	width  int
	err    error
}

func newModel(cfg Config, src Source) model {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefresh
	}
	if cfg.ThresholdStep <= 0 {
		cfg.ThresholdStep = 1000
	}
	return model{
		cfg:    cfg,
		src:    src,
		status: src.Status(),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:  maxWidth,
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.cfg.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return m.tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "+", "=":
			m.adjustThreshold(m.cfg.ThresholdStep)
		case "-", "_":
			m.adjustThreshold(-m.cfg.ThresholdStep)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = min(msg.Width, maxWidth)
		m.bar.Width = max(m.width-labelStyle.GetWidth()-2, 10)
		return m, nil

	case tickMsg:
		m.status = m.src.Status()
		return m, m.tick()
	}
	return m, nil
}

func (m *model) adjustThreshold(delta int) {
	next := max(int(m.status.FeedThreshold)+delta, 0)
	m.err = m.src.SetFeedThreshold(next)
	m.status = m.src.Status()
}

// fill is the share of the feed target, twice the threshold, that is
// currently buffered.
func fill(st pcmsound.Status) float64 {
	target := float64(2 * st.FeedThreshold)
	if target <= 0 {
		if st.BufferedFrames > 0 {
			return 1
		}
		return 0
	}
	return min(float64(st.BufferedFrames)/target, 1)
}

func (m model) row(label, value string) string {
	line := labelStyle.Render(label) + value
	return truncate.StringWithTail(line, uint(m.width), "…") //nolint:gosec
}

func (m model) View() string {
	st := m.status
	var b strings.Builder

	title := "pcmfeed"
	if m.cfg.Title != "" {
		title += " · " + m.cfg.Title
	}
	b.WriteString(truncate.StringWithTail(titleStyle.Render(title), uint(m.width), "…")) //nolint:gosec
	b.WriteString("\n\n")

	state := lipgloss.NewStyle().Foreground(stateColors[st.State]).Render(st.State.String())
	b.WriteString(m.row("state", state) + "\n")

	if s := st.Session; s != nil {
		format := fmt.Sprintf("%d Hz, %d ch (%s), chunk %s",
			s.SampleRate, s.NumChannels, s.Layout, humanize.IBytes(uint64(s.WriteChunkBytes))) //nolint:gosec
		b.WriteString(m.row("format", format) + "\n")
		b.WriteString(m.row("playing for", time.Since(s.StartedAt).Truncate(time.Second).String()) + "\n")
	}

	b.WriteString(m.row("buffered", m.bar.ViewAs(fill(st))) + "\n")
	b.WriteString(m.row("", fmt.Sprintf("%s frames in %d buffers",
		humanize.Comma(st.BufferedFrames), st.QueuedBuffers)) + "\n")
	b.WriteString(m.row("threshold", humanize.Comma(st.FeedThreshold)+" frames") + "\n")
	b.WriteString(m.row("fed", humanize.IBytes(uint64(st.BytesFed))) + "\n")         //nolint:gosec
	b.WriteString(m.row("written", humanize.IBytes(uint64(st.BytesWritten))) + "\n") //nolint:gosec
	if st.BytesDropped > 0 {
		b.WriteString(m.row("dropped", errorStyle.Render(humanize.IBytes(uint64(st.BytesDropped)))) + "\n") //nolint:gosec
	}
	b.WriteString(m.row("notified", humanize.Comma(st.Notifications)) + "\n")
	if st.Clamps > 0 {
		b.WriteString(m.row("clamped", humanize.Comma(st.Clamps)) + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(truncate.StringWithTail(m.err.Error(), uint(m.width), "…")) + "\n") //nolint:gosec
	}

	b.WriteString("\n" + helpStyle.Render("+/- threshold • q quit") + "\n")
	return b.String()
}

// Run shows the monitor until the user quits or ctx is done. Cancellation
// is not an error.
func Run(ctx context.Context, cfg Config, src Source) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.InputTTY {
		opts = append(opts, tea.WithInputTTY())
	}

	if _, err := tea.NewProgram(newModel(cfg, src), opts...).Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}
