package pcmsound

// EngineState is the lifecycle state of a PlaybackEngine.
type EngineState int32

const (
	// StateIdle means no device is open and no loop is running.
	StateIdle EngineState = iota
	// StateConfigured means the device is open and the loop is starting.
	StateConfigured
	// StateRunning means the loop is draining the queue to the device.
	StateRunning
	// StateDraining means the session is being torn down.
	StateDraining
)

// String returns the string representation of the state.
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

var stateTransitions = map[EngineState][]EngineState{
	StateIdle:       {StateConfigured},
	StateConfigured: {StateRunning, StateDraining},
	StateRunning:    {StateDraining},
	StateDraining:   {StateIdle},
}

// CanTransition reports whether the engine may move from s to next.
func (s EngineState) CanTransition(next EngineState) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
