// Package audio provides the bounded stream buffer that connects the
// playback loop to pull-based audio backends.
package audio
