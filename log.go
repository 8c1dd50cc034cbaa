package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/pkg/pcmsound"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "pcmfeed").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to get cache dir: %w", err)
	}
	return filepath.Join(dir, "pcmfeed.log"), nil
}

// setupLog points the default logger at stderr, or at a log file in the user
// cache dir when the TUI owns the terminal. The returned func closes the
// file.
func setupLog(level pcmsound.LogLevel, toFile bool) (func() error, error) {
	if !toFile {
		log.SetOutput(os.Stderr)
		pcmsound.InitializeLogging(level, nil)
		return func() error { return nil }, nil
	}

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	pcmsound.InitializeLogging(level, f)
	return f.Close, nil
}
