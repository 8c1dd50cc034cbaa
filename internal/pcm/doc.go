// Package pcm holds the frame arithmetic and format helpers for 16-bit
// interleaved PCM audio.
package pcm
