package pcmsound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"

	"github.com/charmbracelet/log"
)

// Method names accepted by Invoke.
const (
	MethodSetup            = "setup"
	MethodFeed             = "feed"
	MethodSetFeedThreshold = "setFeedThreshold"
	MethodRelease          = "release"
	MethodSetLogLevel      = "setLogLevel"
	MethodStatus           = "status"
)

// Argument keys accepted by Invoke.
const (
	ArgSampleRate    = "sample_rate"
	ArgNumChannels   = "num_channels"
	ArgBuffer        = "buffer"
	ArgFeedThreshold = "feed_threshold"
	ArgLogLevel      = "log_level"
)

// FeedCallback is told how many frames remain once the engine runs low.
type FeedCallback func(remainingFrames int)

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Config defaults to DefaultConfig when left as the zero value.
	Config Config

	// Device and Focus override the ones the config describes.
	Device DeviceOutput
	Focus  FocusNegotiator

	// OnFeedSamples receives low-buffer notifications off the playback
	// goroutine.
	OnFeedSamples FeedCallback
}

// Controller is the public operation surface of the playback engine. It
// validates arguments, owns the engine lifecycle, and reports every failure
// as an *Error, including panics.
type Controller struct {
	engine *Engine
	config Config

	mu     sync.RWMutex
	onFeed FeedCallback
}

// NewController builds the device, focus negotiator and engine described by
// opts.
func NewController(opts ControllerOptions) (*Controller, error) {
	cfg := opts.Config
	if cfg == (Config{}) {
		defaults, err := DefaultConfig()
		if err != nil {
			return nil, newError(KindInvalidArguments, "new controller", err)
		}
		if err := defaults.Validate(); err != nil {
			return nil, newError(KindInvalidArguments, "new controller", err)
		}
		cfg = defaults
	}

	device := opts.Device
	if device == nil {
		backend, err := ParseBackend(cfg.Device.Backend)
		if err != nil {
			return nil, newError(KindInvalidArguments, "new controller", err)
		}
		device, err = NewDevice(backend)
		if err != nil {
			return nil, newError(KindDevice, "new controller", err)
		}
	}

	focus := opts.Focus
	if focus == nil {
		focus = NewFocus(cfg.Focus)
	}

	c := &Controller{config: cfg, onFeed: opts.OnFeedSamples}

	engine, err := NewEngine(cfg.EngineOptions(device, focus, SinkFunc(c.deliver)))
	if err != nil {
		return nil, err
	}
	if err := engine.SetFeedThreshold(cfg.FeedThreshold); err != nil {
		_ = engine.Close()
		return nil, err
	}
	c.engine = engine
	return c, nil
}

// OnFeedSamples replaces the low-buffer callback.
func (c *Controller) OnFeedSamples(fn FeedCallback) {
	c.mu.Lock()
	c.onFeed = fn
	c.mu.Unlock()
}

func (c *Controller) deliver(ev FeedEvent) {
	if !c.engine.isCurrent(ev.Session) {
		log.Debug("Dropping feed notification from a released session", "session", ev.Session)
		return
	}

	c.mu.RLock()
	fn := c.onFeed
	c.mu.RUnlock()

	if fn == nil {
		log.Debug("Dropping feed notification without callback", "remaining_frames", ev.RemainingFrames)
		return
	}
	fn(int(ev.RemainingFrames))
}

// guard turns a panic or an untyped error into an OperationError.
func guard(op string, errp *error) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		log.Error("Operation panicked", "op", op, "panic", r)
		*errp = &Error{Kind: KindOperation, Op: op, Err: fmt.Errorf("panic: %v", r), Stack: stack}
		return
	}
	if *errp == nil || errors.Is(*errp, ErrNotImplemented) {
		return
	}
	var e *Error
	if !errors.As(*errp, &e) {
		*errp = &Error{Kind: KindOperation, Op: op, Err: *errp, Stack: string(debug.Stack())}
	}
}

// Setup starts a playback session. The configured focus request is used
// unless req carries one.
func (c *Controller) Setup(ctx context.Context, req SetupRequest) (err error) {
	defer guard(MethodSetup, &err)

	if req.SampleRate <= 0 {
		return invalidArgs(MethodSetup, "sample rate must be positive, got %d", req.SampleRate)
	}
	if req.NumChannels <= 0 {
		return invalidArgs(MethodSetup, "number of channels must be positive, got %d", req.NumChannels)
	}
	if req.Focus == nil {
		focus := c.config.Focus.Request()
		req.Focus = &focus
	}
	return c.engine.Setup(ctx, req)
}

// Feed queues a buffer of 16-bit PCM for playback.
func (c *Controller) Feed(buf []byte) (err error) {
	defer guard(MethodFeed, &err)
	return c.engine.Feed(buf)
}

// SetFeedThreshold sets the low-buffer threshold in frames.
func (c *Controller) SetFeedThreshold(frames int) (err error) {
	defer guard(MethodSetFeedThreshold, &err)
	return c.engine.SetFeedThreshold(frames)
}

// Release stops the active session, if any.
func (c *Controller) Release() (err error) {
	defer guard(MethodRelease, &err)
	return c.engine.Release()
}

// SetLogLevel changes the verbosity of the default logger.
func (c *Controller) SetLogLevel(name string) (err error) {
	defer guard(MethodSetLogLevel, &err)

	level, perr := ParseLogLevel(name)
	if perr != nil {
		return newError(KindInvalidArguments, MethodSetLogLevel, perr)
	}
	log.SetLevel(level.Level())
	return nil
}

// Status reports the engine state.
func (c *Controller) Status() Status {
	return c.engine.Status()
}

// State returns the engine lifecycle state.
func (c *Controller) State() EngineState {
	return c.engine.State()
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config {
	return c.config
}

// Close releases the session and stops notification delivery.
func (c *Controller) Close() (err error) {
	defer guard("close", &err)
	return c.engine.Close()
}

// Invoke dispatches a loosely typed method call, as received from a host
// runtime, to the typed operations.
func (c *Controller) Invoke(ctx context.Context, method string, args map[string]any) (result any, err error) {
	defer guard(method, &err)

	switch method {
	case MethodSetup:
		rate, err := intArg(method, args, ArgSampleRate)
		if err != nil {
			return nil, err
		}
		channels, err := intArg(method, args, ArgNumChannels)
		if err != nil {
			return nil, err
		}
		return nil, c.Setup(ctx, SetupRequest{SampleRate: rate, NumChannels: channels})

	case MethodFeed:
		raw, ok := args[ArgBuffer]
		if !ok || raw == nil {
			return nil, invalidArgs(method, "missing argument %q", ArgBuffer)
		}
		buf, ok := raw.([]byte)
		if !ok {
			return nil, invalidArgs(method, "argument %q must be bytes, got %T", ArgBuffer, raw)
		}
		return nil, c.Feed(buf)

	case MethodSetFeedThreshold:
		frames, err := intArg(method, args, ArgFeedThreshold)
		if err != nil {
			return nil, err
		}
		return nil, c.SetFeedThreshold(frames)

	case MethodRelease:
		return nil, c.Release()

	case MethodSetLogLevel:
		raw, ok := args[ArgLogLevel]
		if !ok {
			return nil, invalidArgs(method, "missing argument %q", ArgLogLevel)
		}
		name, ok := raw.(string)
		if !ok {
			return nil, invalidArgs(method, "argument %q must be a string, got %T", ArgLogLevel, raw)
		}
		return nil, c.SetLogLevel(name)

	case MethodStatus:
		return c.Status(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, method)
	}
}

// intArg reads an integer argument. Hosts that marshal through JSON deliver
// numbers as float64 or json.Number, which are accepted when integral.
func intArg(method string, args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, invalidArgs(method, "missing argument %q", key)
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, invalidArgs(method, "argument %q must be an integer, got %v", key, v)
		}
		if v < math.MinInt || v >= math.MaxInt {
			return 0, invalidArgs(method, "argument %q is out of range, got %v", key, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, invalidArgs(method, "argument %q must be an integer: %v", key, err)
		}
		if n < math.MinInt || n > math.MaxInt {
			return 0, invalidArgs(method, "argument %q is out of range, got %d", key, n)
		}
		return int(n), nil
	default:
		return 0, invalidArgs(method, "argument %q must be an integer, got %T", key, raw)
	}
}
