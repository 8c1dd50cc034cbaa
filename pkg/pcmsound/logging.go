package pcmsound

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/dustin/go-humanize"
)

// LogLevel is the verbosity a host can request through SetLogLevel.
type LogLevel string

const (
	// LogLevelNone silences the logger.
	LogLevelNone LogLevel = "none"
	// LogLevelError logs failures only.
	LogLevelError LogLevel = "error"
	// LogLevelStandard logs at info level.
	LogLevelStandard LogLevel = "standard"
	// LogLevelVerbose adds debug output.
	LogLevelVerbose LogLevel = "verbose"
)

// LogLevels lists the accepted level names.
var LogLevels = []string{
	string(LogLevelNone),
	string(LogLevelError),
	string(LogLevelStandard),
	string(LogLevelVerbose),
}

// silentLevel is above every level charm log emits.
const silentLevel = log.FatalLevel + 1

// ParseLogLevel converts a host level name to a LogLevel.
func ParseLogLevel(name string) (LogLevel, error) {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(name))); l {
	case LogLevelNone, LogLevelError, LogLevelStandard, LogLevelVerbose:
		return l, nil
	default:
		return "", fmt.Errorf("unknown log level %q, expected one of %s", name, strings.Join(LogLevels, ", "))
	}
}

// Level returns the charm log level for l.
func (l LogLevel) Level() log.Level {
	switch l {
	case LogLevelNone:
		return silentLevel
	case LogLevelError:
		return log.ErrorLevel
	case LogLevelVerbose:
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}

// InitializeLogging applies level to the default logger. When file is not
// nil, log output goes there with timestamps instead.
func InitializeLogging(level LogLevel, file io.Writer) {
	if file != nil {
		log.SetDefault(log.NewWithOptions(file, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Level:           level.Level(),
		}))
	}
	log.SetLevel(level.Level())
	log.Debug("Logging initialized", "level", level)
}

// logSessionSummary reports what a session played once it is torn down.
func logSessionSummary(info Session, st sessionStats) {
	f := pcm.Format{SampleRate: info.SampleRate, Channels: info.NumChannels}
	played := f.Duration(int(st.BytesWritten))

	log.Info("Playback session ended",
		"session", info.ID,
		"fed", humanize.IBytes(uint64(st.BytesFed)),
		"written", humanize.IBytes(uint64(st.BytesWritten)),
		"played", played.Round(time.Millisecond),
		"uptime", time.Since(info.StartedAt).Round(time.Millisecond),
		"notifications", st.Notifications)

	if st.BytesDropped > 0 || st.WriteErrors > 0 {
		log.Warn("Playback session lost audio",
			"session", info.ID,
			"dropped", humanize.IBytes(uint64(st.BytesDropped)),
			"write_errors", st.WriteErrors)
	}
	if st.Clamps > 0 {
		log.Warn("Buffered byte counter was clamped during session",
			"session", info.ID,
			"clamps", humanize.Comma(st.Clamps))
	}
}
