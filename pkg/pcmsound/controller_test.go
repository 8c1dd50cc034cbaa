package pcmsound

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

func testConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		FeedThreshold: DefaultFeedThreshold,
		LogLevel:      string(LogLevelStandard),
		Device:        DeviceSettings{Backend: string(BackendMock)},
		Focus: FocusConfig{
			Mode:    FocusModeNone,
			Usage:   "media",
			Content: "music",
		},
		Feed: FeedConfig{ChunkMillis: 20},
	}
}

// panicDevice blows up as soon as the engine asks it anything.
type panicDevice struct{}

func (*panicDevice) MinBufferSize(int, int) (int, error) { panic("driver exploded") }
func (*panicDevice) Open(DeviceConfig) error              { return nil }
func (*panicDevice) Write(p []byte) (int, error)          { return len(p), nil }
func (*panicDevice) Start() error                         { return nil }
func (*panicDevice) Stop() error                          { return nil }
func (*panicDevice) Flush() error                         { return nil }
func (*panicDevice) Release() error                       { return nil }

func newTestController(t *testing.T, device DeviceOutput, focus FocusNegotiator) (*Controller, chan int) {
	t.Helper()

	frames := make(chan int, 16)
	c, err := NewController(ControllerOptions{
		Config: testConfig(),
		Device: device,
		Focus:  focus,
		OnFeedSamples: func(remaining int) {
			frames <- remaining
		},
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, frames
}

func TestControllerScenario(t *testing.T) {
	device := NewMockDevice(MockDeviceOptions{})
	c, frames := newTestController(t, device, nil)

	if err := c.Setup(context.Background(), SetupRequest{SampleRate: 16000, NumChannels: 1}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := c.Feed(pcmBytes(32000)); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}

	select {
	case got := <-frames:
		if got != 8000 {
			t.Errorf("OnFeedSamples(%d), want 8000", got)
		}
	case <-timeoutAfter():
		t.Fatal("timed out waiting for OnFeedSamples")
	}

	if err := c.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("State() = %v, want idle", c.State())
	}
}

func TestControllerUsesConfiguredFocusRequest(t *testing.T) {
	focus := &MockFocus{}
	c, _ := newTestController(t, NewMockDevice(MockDeviceOptions{}), focus)

	if err := c.Setup(context.Background(), SetupRequest{SampleRate: 8000, NumChannels: 1}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	want := FocusRequest{Usage: "media", Content: "music"}
	if focus.LastRequest != want {
		t.Errorf("focus request = %+v, want %+v", focus.LastRequest, want)
	}
}

func TestControllerValidatesBeforeEngine(t *testing.T) {
	device := NewMockDevice(MockDeviceOptions{})
	c, _ := newTestController(t, device, nil)

	err := c.Setup(context.Background(), SetupRequest{SampleRate: 16000, NumChannels: 0})
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Setup() error = %v, want ErrInvalidArguments", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Code() != "InvalidArguments" {
		t.Errorf("error code = %v, want InvalidArguments", err)
	}
	if device.OpenCount != 0 {
		t.Errorf("device opened %d times, want 0", device.OpenCount)
	}
}

func TestControllerRecoversPanics(t *testing.T) {
	c, _ := newTestController(t, &panicDevice{}, nil)

	err := c.Setup(context.Background(), SetupRequest{SampleRate: 16000, NumChannels: 1})
	if !errors.Is(err, ErrOperation) {
		t.Fatalf("Setup() error = %v, want ErrOperation", err)
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error %T is not *Error", err)
	}
	if e.Code() != "OperationError" {
		t.Errorf("Code() = %q, want OperationError", e.Code())
	}
	if !strings.Contains(e.Error(), "driver exploded") {
		t.Errorf("message %q does not mention the panic", e.Error())
	}
	if e.Stack == "" {
		t.Error("expected a stack trace")
	}

	// The engine stays usable after a panic.
	if got := c.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
	if err := c.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestGuardWrapsUntypedErrors(t *testing.T) {
	run := func(cause error) (err error) {
		defer guard("probe", &err)
		return cause
	}

	if err := run(nil); err != nil {
		t.Errorf("guard(nil) = %v, want nil", err)
	}

	err := run(errors.New("boom"))
	if KindOf(err) != KindOperation {
		t.Errorf("KindOf() = %v, want operation error", KindOf(err))
	}

	typed := newError(KindFocus, "probe", nil)
	if err := run(typed); err != typed {
		t.Errorf("guard rewrapped a typed error: %v", err)
	}
}

func TestControllerInvoke(t *testing.T) {
	device := NewMockDevice(MockDeviceOptions{})
	c, frames := newTestController(t, device, nil)
	ctx := context.Background()

	// Hosts marshalling through JSON send float64 numbers.
	if _, err := c.Invoke(ctx, MethodSetup, map[string]any{
		ArgSampleRate:  float64(16000),
		ArgNumChannels: float64(1),
	}); err != nil {
		t.Fatalf("Invoke(setup) error = %v", err)
	}

	if _, err := c.Invoke(ctx, MethodSetFeedThreshold, map[string]any{
		ArgFeedThreshold: json.Number("100"),
	}); err != nil {
		t.Fatalf("Invoke(setFeedThreshold) error = %v", err)
	}

	if _, err := c.Invoke(ctx, MethodFeed, map[string]any{ArgBuffer: pcmBytes(1280)}); err != nil {
		t.Fatalf("Invoke(feed) error = %v", err)
	}

	select {
	case got := <-frames:
		if got > 100 {
			t.Errorf("OnFeedSamples(%d), want at most 100", got)
		}
	case <-timeoutAfter():
		t.Fatal("timed out waiting for OnFeedSamples")
	}

	res, err := c.Invoke(ctx, MethodStatus, nil)
	if err != nil {
		t.Fatalf("Invoke(status) error = %v", err)
	}
	st, ok := res.(Status)
	if !ok {
		t.Fatalf("status result is %T", res)
	}
	if st.FeedThreshold != 100 || st.State != StateRunning {
		t.Errorf("status = %+v", st)
	}

	if _, err := c.Invoke(ctx, MethodRelease, nil); err != nil {
		t.Fatalf("Invoke(release) error = %v", err)
	}
	if device.IsOpen() {
		t.Error("device still open after release")
	}
}

func TestControllerInvokeErrors(t *testing.T) {
	c, _ := newTestController(t, NewMockDevice(MockDeviceOptions{}), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		method string
		args   map[string]any
		want   error
	}{
		{"setup missing rate", MethodSetup, map[string]any{ArgNumChannels: 1}, ErrInvalidArguments},
		{"setup fractional rate", MethodSetup, map[string]any{ArgSampleRate: 16000.5, ArgNumChannels: 1}, ErrInvalidArguments},
		{"setup huge rate", MethodSetup, map[string]any{ArgSampleRate: 1e300, ArgNumChannels: 1}, ErrInvalidArguments},
		{"setup huge channels", MethodSetup, map[string]any{ArgSampleRate: 16000, ArgNumChannels: -1e300}, ErrInvalidArguments},
		{"setup string channels", MethodSetup, map[string]any{ArgSampleRate: 16000, ArgNumChannels: "two"}, ErrInvalidArguments},
		{"setup zero channels", MethodSetup, map[string]any{ArgSampleRate: 16000, ArgNumChannels: 0}, ErrInvalidArguments},
		{"feed missing buffer", MethodFeed, map[string]any{}, ErrInvalidArguments},
		{"feed wrong type", MethodFeed, map[string]any{ArgBuffer: "pcm"}, ErrInvalidArguments},
		{"feed before setup", MethodFeed, map[string]any{ArgBuffer: []byte{1, 2}}, ErrSetupRequired},
		{"threshold missing", MethodSetFeedThreshold, nil, ErrInvalidArguments},
		{"threshold negative", MethodSetFeedThreshold, map[string]any{ArgFeedThreshold: -5}, ErrInvalidArguments},
		{"log level unknown", MethodSetLogLevel, map[string]any{ArgLogLevel: "loud"}, ErrInvalidArguments},
		{"log level wrong type", MethodSetLogLevel, map[string]any{ArgLogLevel: 3}, ErrInvalidArguments},
		{"unknown method", "getVolume", nil, ErrNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Invoke(ctx, tt.method, tt.args)
			if !errors.Is(err, tt.want) {
				t.Errorf("Invoke(%s) error = %v, want %v", tt.method, err, tt.want)
			}
		})
	}
}

func TestControllerSetLogLevel(t *testing.T) {
	c, _ := newTestController(t, NewMockDevice(MockDeviceOptions{}), nil)

	prev := log.GetLevel()
	defer log.SetLevel(prev)

	tests := []struct {
		name string
		want log.Level
	}{
		{"none", silentLevel},
		{"error", log.ErrorLevel},
		{"standard", log.InfoLevel},
		{"VERBOSE", log.DebugLevel},
	}
	for _, tt := range tests {
		if err := c.SetLogLevel(tt.name); err != nil {
			t.Fatalf("SetLogLevel(%q) error = %v", tt.name, err)
		}
		if got := log.GetLevel(); got != tt.want {
			t.Errorf("SetLogLevel(%q) level = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewControllerBuildsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.FeedThreshold = 1234

	c, err := NewController(ControllerOptions{Config: cfg})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	defer c.Close()

	if got := c.Status().FeedThreshold; got != 1234 {
		t.Errorf("FeedThreshold = %d, want 1234", got)
	}

	cfg.Device.Backend = "speaker"
	if _, err := NewController(ControllerOptions{Config: cfg}); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("NewController(bad backend) error = %v, want ErrInvalidArguments", err)
	}
}

func TestNewControllerWithoutConfigUsesDefaults(t *testing.T) {
	focus := &MockFocus{}
	c, err := NewController(ControllerOptions{
		Device: NewMockDevice(MockDeviceOptions{}),
		Focus:  focus,
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	defer c.Close()

	if got := c.Status().FeedThreshold; got != DefaultFeedThreshold {
		t.Errorf("FeedThreshold = %d, want %d", got, DefaultFeedThreshold)
	}
	if got := c.Config().FeedThreshold; got != DefaultFeedThreshold {
		t.Errorf("Config().FeedThreshold = %d, want %d", got, DefaultFeedThreshold)
	}

	if err := c.Setup(context.Background(), SetupRequest{SampleRate: 16000, NumChannels: 1}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if focus.LastRequest != DefaultFocusRequest() {
		t.Errorf("focus request = %+v, want %+v", focus.LastRequest, DefaultFocusRequest())
	}
}

func TestControllerDropsEventsFromReleasedSessions(t *testing.T) {
	c, frames := newTestController(t, NewMockDevice(MockDeviceOptions{}), nil)

	if err := c.Setup(context.Background(), SetupRequest{SampleRate: 16000, NumChannels: 1}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	current := c.Status().Session.ID

	c.deliver(FeedEvent{RemainingFrames: 10, Session: uuid.New()})
	select {
	case got := <-frames:
		t.Fatalf("OnFeedSamples(%d) for a stale session", got)
	default:
	}

	c.deliver(FeedEvent{RemainingFrames: 10, Session: current})
	select {
	case got := <-frames:
		if got != 10 {
			t.Errorf("OnFeedSamples(%d), want 10", got)
		}
	default:
		t.Fatal("event for the live session was dropped")
	}

	if err := c.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	c.deliver(FeedEvent{RemainingFrames: 10, Session: current})
	select {
	case got := <-frames:
		t.Fatalf("OnFeedSamples(%d) after release", got)
	default:
	}
}
