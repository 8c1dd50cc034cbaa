package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/pcmfeed/internal/pcm"
	"github.com/fsnotify/fsnotify"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/klauspost/compress/zstd"
)

// source provides a readable stream of signed 16-bit little-endian PCM.
type source struct {
	reader io.ReadCloser
	name   string
	// format is set when the container carries one, as WAV does.
	format *pcm.Format
}

// sourceFromArg parses an argument and creates a readable source for it.
func sourceFromArg(ctx context.Context, arg string, follow bool) (*source, error) {
	// from stdin
	if arg == "" || arg == "-" {
		return &source{reader: io.NopCloser(os.Stdin), name: "stdin"}, nil
	}

	path, err := filepath.Abs(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		if follow {
			return nil, errors.New("--follow only works with raw PCM files")
		}
		return wavSource(path)
	case ".zst", ".zstd":
		if follow {
			return nil, errors.New("--follow only works with raw PCM files")
		}
		return zstdSource(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	if follow {
		r, err := newFollowReader(ctx, f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &source{reader: r, name: path}, nil
	}
	return &source{reader: f, name: path}, nil
}

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// wavSource decodes the PCM payload of a WAV file into s16le.
func wavSource(path string) (*source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}
	if err := d.FwdToPCM(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("unable to find PCM data: %w", err)
	}

	switch d.BitDepth {
	case 16, 24, 32:
	default:
		_ = f.Close()
		return nil, fmt.Errorf("unsupported WAV bit depth %d (want 16, 24 or 32)", d.BitDepth)
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		_ = f.Close()
		return nil, fmt.Errorf("unsupported WAV encoding %d, only integer PCM can be played", d.WavAudioFormat)
	}

	format := &pcm.Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
	if err := format.Validate(); err != nil {
		_ = f.Close()
		return nil, err
	}

	log.Debug("Opened WAV source",
		"path", path,
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"bit_depth", d.BitDepth)

	r := &wavReader{
		file:     f,
		decoder:  d,
		bitDepth: int(d.BitDepth),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			Data:           make([]int, 4096*format.Channels),
			SourceBitDepth: int(d.BitDepth),
		},
	}
	return &source{reader: r, name: path, format: format}, nil
}

type wavReader struct {
	file     *os.File
	decoder  *wav.Decoder
	bitDepth int
	buf      *audio.IntBuffer
	pending  []byte
	eof      bool
}

func (r *wavReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		n, err := r.decoder.PCMBuffer(r.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("unable to decode WAV data: %w", err)
		}
		if n == 0 || errors.Is(err, io.EOF) {
			r.eof = true
		}
		if n == 0 {
			continue
		}

		out := make([]byte, n*pcm.BytesPerSample)
		if _, err := pcm.PutInt16LE(out, r.buf.Data[:n], r.bitDepth); err != nil {
			return 0, err
		}
		r.pending = out
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *wavReader) Close() error {
	return r.file.Close()
}

// zstdSource reads zstd-compressed raw PCM.
func zstdSource(path string) (*source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	d, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("unable to create zstd reader: %w", err)
	}
	return &source{reader: &zstdReadCloser{Decoder: d, file: f}, name: path}, nil
}

type zstdReadCloser struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

// followPoll catches writes fsnotify misses, such as on network filesystems.
const followPoll = 250 * time.Millisecond

// followReader reads a file that another process is still appending to. At
// the current end of the file it waits for the next write instead of
// returning io.EOF. It returns io.EOF once ctx is done or the file is
// removed.
type followReader struct {
	ctx     context.Context
	file    *os.File
	watcher *fsnotify.Watcher
}

func newFollowReader(ctx context.Context, f *os.File) (*followReader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to watch file: %w", err)
	}
	if err := watcher.Add(f.Name()); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("unable to watch %s: %w", f.Name(), err)
	}
	return &followReader{ctx: ctx, file: f, watcher: watcher}, nil
}

func (r *followReader) Read(p []byte) (int, error) {
	ticker := time.NewTicker(followPoll)
	defer ticker.Stop()

	for {
		n, err := r.file.Read(p)
		if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
			return n, err
		}

		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return 0, io.EOF
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				log.Debug("Followed file went away", "path", ev.Name)
				return 0, io.EOF
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return 0, io.EOF
			}
			log.Warn("File watcher error", "error", err)
		case <-ticker.C:
		}
	}
}

func (r *followReader) Close() error {
	werr := r.watcher.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return werr
}
