package pcmsound

import "testing"

func TestEngineStateTransitions(t *testing.T) {
	tests := []struct {
		from, to EngineState
		want     bool
	}{
		{StateIdle, StateConfigured, true},
		{StateIdle, StateRunning, false},
		{StateConfigured, StateRunning, true},
		{StateConfigured, StateDraining, true},
		{StateRunning, StateDraining, true},
		{StateRunning, StateIdle, false},
		{StateDraining, StateIdle, true},
		{StateDraining, StateRunning, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%v -> %v = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEngineStateString(t *testing.T) {
	want := map[EngineState]string{
		StateIdle:       "idle",
		StateConfigured: "configured",
		StateRunning:    "running",
		StateDraining:   "draining",
		EngineState(42): "unknown",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("String() = %q, want %q", s.String(), name)
		}
	}
}
