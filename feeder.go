package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/charmbracelet/pcmfeed/pkg/pcmsound"
)

// minPrimeChunks keeps the feeder ahead of the device when the threshold is
// set very low or to zero.
const minPrimeChunks = 4

// player is the part of the controller the feeder drives.
type player interface {
	Setup(ctx context.Context, req pcmsound.SetupRequest) error
	Feed(buf []byte) error
	Release() error
	Status() pcmsound.Status
	OnFeedSamples(fn pcmsound.FeedCallback)
}

// Feeder streams a PCM source into a player, feeding more audio whenever the
// player reports that it is running low.
type Feeder struct {
	player     player
	format     pcm.Format
	chunkBytes int
	wake       chan struct{}
}

// NewFeeder creates a feeder that reads chunk worth of audio at a time.
func NewFeeder(p player, format pcm.Format, chunk time.Duration) (*Feeder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	chunkBytes := format.BytesFor(chunk)
	if chunkBytes <= 0 {
		chunkBytes = format.BytesPerFrame()
	}
	return &Feeder{
		player:     p,
		format:     format,
		chunkBytes: chunkBytes,
		wake:       make(chan struct{}, 1),
	}, nil
}

type chunk struct {
	data []byte
	err  error
}

// readChunks reads r on its own goroutine so a blocked read never holds up
// cancellation. The channel is closed at the end of the source.
func readChunks(ctx context.Context, r io.Reader, size, bytesPerFrame int) <-chan chunk {
	out := make(chan chunk, 2)
	go func() {
		defer close(out)
		for {
			buf := make([]byte, size)
			n, err := io.ReadFull(r, buf)
			n -= n % bytesPerFrame
			if n > 0 {
				select {
				case out <- chunk{data: buf[:n]}:
				case <-ctx.Done():
					return
				}
			}
			if err == nil {
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				select {
				case out <- chunk{err: err}:
				case <-ctx.Done():
				}
			}
			return
		}
	}()
	return out
}

func (f *Feeder) onFeedSamples(remaining int) {
	log.Debug("Player running low", "remaining_frames", remaining)
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// targetBytes is how much audio the feeder keeps buffered: twice the
// threshold, and never less than a few chunks.
func (f *Feeder) targetBytes(st pcmsound.Status) int64 {
	target := 2 * st.FeedThreshold * int64(f.format.BytesPerFrame())
	if floor := int64(minPrimeChunks * f.chunkBytes); target < floor {
		target = floor
	}
	return target
}

// Run sets up a session, plays r to its end and releases the session. It
// returns ctx.Err() when cancelled.
func (f *Feeder) Run(ctx context.Context, r io.Reader) error {
	f.player.OnFeedSamples(f.onFeedSamples)
	defer f.player.OnFeedSamples(nil)

	req := pcmsound.SetupRequest{SampleRate: f.format.SampleRate, NumChannels: f.format.Channels}
	if err := f.player.Setup(ctx, req); err != nil {
		return fmt.Errorf("unable to set up playback: %w", err)
	}
	defer func() {
		if err := f.player.Release(); err != nil {
			log.Error("Failed to release playback", "error", err)
		}
	}()

	log.Info("Playing",
		"sample_rate", f.format.SampleRate,
		"channels", f.format.Channels,
		"chunk", f.format.Duration(f.chunkBytes))

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	chunks := readChunks(readCtx, r, f.chunkBytes, f.format.BytesPerFrame())

	ticker := time.NewTicker(f.format.Duration(f.chunkBytes) + time.Millisecond)
	defer ticker.Stop()

	for {
		done, err := f.topUp(ctx, chunks)
		if err != nil {
			return err
		}
		if done {
			return f.waitPlayed(ctx, ticker)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.wake:
		case <-ticker.C:
		}
	}
}

// topUp feeds chunks until the target is buffered. It reports true once the
// source is exhausted.
func (f *Feeder) topUp(ctx context.Context, chunks <-chan chunk) (bool, error) {
	for {
		st := f.player.Status()
		if st.BufferedBytes >= f.targetBytes(st) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				return true, nil
			}
			if c.err != nil {
				return false, fmt.Errorf("unable to read source: %w", c.err)
			}
			if err := f.player.Feed(c.data); err != nil {
				return false, fmt.Errorf("unable to feed audio: %w", err)
			}
		}
	}
}

// waitPlayed blocks until everything fed has been handed to the device.
func (f *Feeder) waitPlayed(ctx context.Context, ticker *time.Ticker) error {
	log.Debug("Source exhausted, waiting for playback to catch up")
	for {
		st := f.player.Status()
		if st.BufferedBytes <= 0 || st.State != pcmsound.StateRunning {
			log.Info("Playback finished",
				"played", f.format.Duration(int(st.BytesWritten)),
				"dropped_bytes", st.BytesDropped)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.wake:
		case <-ticker.C:
		}
	}
}
