package types

import (
	"testing"
)

func TestFailureKindValid(t *testing.T) {
	for _, kind := range AllFailureKinds {
		if !kind.Valid() {
			t.Errorf("kind %q reported invalid", kind)
		}
	}
	if FailureKind("meltdown").Valid() {
		t.Errorf("unknown kind reported valid")
	}
}

func TestFailureKindPriority(t *testing.T) {
	// Direct kinds must all outrank alert-derived kinds.
	for _, direct := range []FailureKind{KindExited, KindStuckRestarting, KindUnhealthy} {
		if !direct.Direct() {
			t.Errorf("kind %q should be direct", direct)
		}
		for _, derived := range []FailureKind{KindHighMemory, KindHighCPU, KindNetworkError, KindDiskLow} {
			if derived.Direct() {
				t.Errorf("kind %q should not be direct", derived)
			}
			if direct.Priority() <= derived.Priority() {
				t.Errorf("direct %q priority %d not above derived %q priority %d",
					direct, direct.Priority(), derived, derived.Priority())
			}
		}
	}

	// Priorities are distinct so classification is deterministic.
	seen := make(map[int]FailureKind)
	for _, kind := range AllFailureKinds {
		if other, dup := seen[kind.Priority()]; dup {
			t.Errorf("kinds %q and %q share priority %d", kind, other, kind.Priority())
		}
		seen[kind.Priority()] = kind
	}
}

func TestActionValid(t *testing.T) {
	for _, action := range []Action{ActionRestart, ActionStopThenStart, ActionCleanup} {
		if !action.Valid() {
			t.Errorf("action %q reported invalid", action)
		}
	}
	if Action("reboot_host").Valid() {
		t.Errorf("unknown action reported valid")
	}
}

func TestServiceStateHealthy(t *testing.T) {
	tests := []struct {
		name  string
		state ServiceState
		want  bool
	}{
		{name: "running with passing check", state: ServiceState{Lifecycle: LifecycleRunning, Health: HealthHealthy}, want: true},
		{name: "running without check", state: ServiceState{Lifecycle: LifecycleRunning, Health: HealthNone}, want: true},
		{name: "running but failing check", state: ServiceState{Lifecycle: LifecycleRunning, Health: HealthUnhealthy}, want: false},
		{name: "running but check starting", state: ServiceState{Lifecycle: LifecycleRunning, Health: HealthStarting}, want: false},
		{name: "exited", state: ServiceState{Lifecycle: LifecycleExited, Health: HealthNone}, want: false},
		{name: "restarting", state: ServiceState{Lifecycle: LifecycleRestarting, Health: HealthHealthy}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Healthy(); got != tt.want {
				t.Errorf("Healthy() = %v, want %v", got, tt.want)
			}
		})
	}
}
