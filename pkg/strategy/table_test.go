package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/supporttools/compose-doctor/pkg/types"
)

func TestNewTableDefaults(t *testing.T) {
	table, err := NewTable(nil)
	if err != nil {
		t.Fatalf("NewTable(nil) unexpected error = %v", err)
	}

	// Every kind in the closed set must be covered.
	for _, kind := range types.AllFailureKinds {
		rule, ok := table.Rule(kind)
		if !ok {
			t.Errorf("Rule(%q) missing from default table", kind)
			continue
		}
		if !rule.Action.Valid() {
			t.Errorf("Rule(%q).Action = %q is invalid", kind, rule.Action)
		}
		if rule.Cooldown <= 0 {
			t.Errorf("Rule(%q).Cooldown = %v, want positive", kind, rule.Cooldown)
		}
		if rule.MaxAttempts <= 0 {
			t.Errorf("Rule(%q).MaxAttempts = %d, want positive", kind, rule.MaxAttempts)
		}
	}

	// Spot-check the defaults that differ per kind.
	rule, _ := table.Rule(types.KindStuckRestarting)
	if rule.Action != types.ActionStopThenStart {
		t.Errorf("stuck_restarting action = %q, want stop_then_start", rule.Action)
	}
	rule, _ = table.Rule(types.KindDiskLow)
	if rule.Action != types.ActionCleanup || rule.MaxAttempts != 1 {
		t.Errorf("disk_low rule = %+v, want cleanup with 1 attempt", rule)
	}
}

func TestNewTableOverrides(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]types.StrategyOverride
		wantError string
		check     func(t *testing.T, table *Table)
	}{
		{
			name: "partial override keeps defaults",
			overrides: map[string]types.StrategyOverride{
				"unhealthy": {MaxAttempts: 5},
			},
			check: func(t *testing.T, table *Table) {
				rule, _ := table.Rule(types.KindUnhealthy)
				if rule.MaxAttempts != 5 {
					t.Errorf("MaxAttempts = %d, want 5", rule.MaxAttempts)
				}
				if rule.Action != types.ActionRestart {
					t.Errorf("Action = %q, want default restart", rule.Action)
				}
				if rule.Cooldown != 5*time.Minute {
					t.Errorf("Cooldown = %v, want default 5m", rule.Cooldown)
				}
			},
		},
		{
			name: "full override",
			overrides: map[string]types.StrategyOverride{
				"high_memory": {Action: "stop_then_start", Cooldown: 20 * time.Minute, MaxAttempts: 2},
			},
			check: func(t *testing.T, table *Table) {
				rule, _ := table.Rule(types.KindHighMemory)
				want := Rule{Action: types.ActionStopThenStart, Cooldown: 20 * time.Minute, MaxAttempts: 2}
				if rule != want {
					t.Errorf("Rule = %+v, want %+v", rule, want)
				}
			},
		},
		{
			name: "unknown kind rejected",
			overrides: map[string]types.StrategyOverride{
				"meltdown": {MaxAttempts: 1},
			},
			wantError: "unknown failure kind",
		},
		{
			name: "unknown action rejected",
			overrides: map[string]types.StrategyOverride{
				"unhealthy": {Action: "reboot_host"},
			},
			wantError: "unknown action",
		},
		{
			name: "negative cooldown rejected",
			overrides: map[string]types.StrategyOverride{
				"unhealthy": {Cooldown: -1 * time.Minute},
			},
			wantError: "non-positive cooldown",
		},
		{
			name: "negative max attempts rejected",
			overrides: map[string]types.StrategyOverride{
				"unhealthy": {MaxAttempts: -2},
			},
			wantError: "non-positive maxAttempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewTable(tt.overrides)

			if tt.wantError != "" {
				if err == nil {
					t.Fatalf("NewTable() expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.wantError) {
					t.Errorf("NewTable() error = %v, want containing %q", err, tt.wantError)
				}
				return
			}

			if err != nil {
				t.Fatalf("NewTable() unexpected error = %v", err)
			}
			tt.check(t, table)
		})
	}
}

func TestTableKinds(t *testing.T) {
	table, err := NewTable(nil)
	if err != nil {
		t.Fatalf("NewTable() unexpected error = %v", err)
	}

	kinds := table.Kinds()
	if len(kinds) != len(types.AllFailureKinds) {
		t.Fatalf("Kinds() returned %d kinds, want %d", len(kinds), len(types.AllFailureKinds))
	}
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] >= kinds[i] {
			t.Errorf("Kinds() not sorted: %q before %q", kinds[i-1], kinds[i])
		}
	}
}

func TestRuleUnknownKind(t *testing.T) {
	table, _ := NewTable(nil)
	if _, ok := table.Rule(types.FailureKind("bogus")); ok {
		t.Errorf("Rule() = true for kind outside the closed set, want false")
	}
}
