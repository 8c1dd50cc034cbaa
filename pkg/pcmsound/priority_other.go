//go:build !linux
// +build !linux

package pcmsound

func raiseThreadPriority() {}
