package pcmsound

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
)

// Platform is the operating system the engine runs on.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

// AudioSubsystem is the native audio stack behind the backends.
type AudioSubsystem string

const (
	AudioSubsystemALSA       AudioSubsystem = "alsa"
	AudioSubsystemPulseAudio AudioSubsystem = "pulseaudio"
	AudioSubsystemCoreAudio  AudioSubsystem = "coreaudio"
	AudioSubsystemWASAPI     AudioSubsystem = "wasapi"
	AudioSubsystemNone       AudioSubsystem = "none"
)

// PlatformInfo describes the host's audio capabilities.
type PlatformInfo struct {
	OS             Platform
	Arch           string
	AudioSubsystem AudioSubsystem
	HasAudioDevice bool
	IsCI           bool
}

// DetectPlatform probes the host for an audio subsystem and output devices.
func DetectPlatform() *PlatformInfo {
	info := &PlatformInfo{
		OS:   currentPlatform(),
		Arch: runtime.GOARCH,
		IsCI: IsCI(),
	}

	switch info.OS {
	case PlatformLinux:
		info.AudioSubsystem = detectLinuxAudio()
		info.HasAudioDevice = hasLinuxAudioDevice(info.AudioSubsystem)
	case PlatformDarwin:
		info.AudioSubsystem = AudioSubsystemCoreAudio
		info.HasAudioDevice = true
	case PlatformWindows:
		info.AudioSubsystem = AudioSubsystemWASAPI
		info.HasAudioDevice = hasWindowsAudioService()
	default:
		info.AudioSubsystem = AudioSubsystemNone
	}

	log.Debug("Platform detected",
		"os", info.OS,
		"audio", info.AudioSubsystem,
		"has_device", info.HasAudioDevice,
		"is_ci", info.IsCI)

	return info
}

// IsCI reports whether we are running in a CI environment or mock audio was
// requested explicitly.
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
		"CIRCLECI",
	}

	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar)
			return true
		}
	}

	return os.Getenv("PCMFEED_MOCK_AUDIO") == "true"
}

func currentPlatform() Platform {
	switch runtime.GOOS {
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformDarwin
	case "windows":
		return PlatformWindows
	default:
		return PlatformUnknown
	}
}

func detectLinuxAudio() AudioSubsystem {
	// PulseAudio and PipeWire's pulse shim both expose a native socket.
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		if _, err := os.Stat(dir + "/pulse/native"); err == nil {
			return AudioSubsystemPulseAudio
		}
	}
	if os.Getenv("PULSE_SERVER") != "" {
		return AudioSubsystemPulseAudio
	}
	if commandAvailable("pactl") {
		if out, err := exec.Command("pactl", "info").Output(); err == nil && strings.Contains(string(out), "Server Name") {
			return AudioSubsystemPulseAudio
		}
	}

	if _, err := os.Stat("/proc/asound"); err == nil {
		return AudioSubsystemALSA
	}
	return AudioSubsystemNone
}

func hasLinuxAudioDevice(subsystem AudioSubsystem) bool {
	if subsystem == AudioSubsystemPulseAudio {
		return true
	}

	entries, err := os.ReadDir("/dev/snd")
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "pcm") && strings.HasSuffix(entry.Name(), "p") {
			return true
		}
	}
	return false
}

func hasWindowsAudioService() bool {
	if !commandAvailable("sc") {
		return true
	}
	out, err := exec.Command("sc", "query", "AudioSrv").Output()
	if err != nil {
		return true
	}
	return strings.Contains(string(out), "RUNNING")
}

func commandAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// ShouldUseMock reports whether real output is pointless on this host.
func (p *PlatformInfo) ShouldUseMock() bool {
	return p.IsCI || p.AudioSubsystem == AudioSubsystemNone || !p.HasAudioDevice
}

// MinBufferMillis is the smallest device buffer, in milliseconds, that
// plays without underruns on this platform.
func (p *PlatformInfo) MinBufferMillis() int {
	switch p.OS {
	case PlatformDarwin:
		return 100
	case PlatformWindows:
		return 80
	case PlatformLinux:
		if p.AudioSubsystem == AudioSubsystemPulseAudio {
			return 30
		}
		return 50
	default:
		return 50
	}
}

// PreferredBackend picks the backend auto mode resolves to.
func (p *PlatformInfo) PreferredBackend() Backend {
	switch {
	case p.ShouldUseMock():
		return BackendMock
	case p.AudioSubsystem == AudioSubsystemPulseAudio && pulseSupported:
		return BackendPulse
	default:
		return BackendOto
	}
}

// String returns a string representation of the platform info.
func (p *PlatformInfo) String() string {
	return fmt.Sprintf("Platform{OS: %s, Audio: %s, HasDevice: %v, IsCI: %v}",
		p.OS, p.AudioSubsystem, p.HasAudioDevice, p.IsCI)
}
