//go:build linux
// +build linux

package pcmsound

import (
	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// audioNice matches the urgent-audio scheduling class.
const audioNice = -16

// raiseThreadPriority renices the calling OS thread. The caller must have
// locked its goroutine to the thread. Unprivileged processes usually can't
// go below zero, which is fine.
func raiseThreadPriority() {
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, audioNice); err != nil {
		log.Debug("Could not raise playback thread priority", "tid", tid, "nice", audioNice, "error", err)
		return
	}
	log.Debug("Raised playback thread priority", "tid", tid, "nice", audioNice)
}
