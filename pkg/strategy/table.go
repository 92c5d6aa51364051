// Package strategy defines the static mapping from failure kind to repair
// strategy. The table is built once at startup and is read-only for the
// process lifetime; an incomplete or inconsistent table is a fatal
// configuration error.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// Rule is the repair strategy for one failure kind.
type Rule struct {
	// Action is the repair action dispatched for this kind.
	Action types.Action

	// Cooldown is the minimum interval after an action before another
	// action of the same kind may be dispatched for the same key.
	Cooldown time.Duration

	// MaxAttempts bounds actions per unresolved incident. Once reached,
	// the key escalates instead of acting.
	MaxAttempts int
}

// Table maps every failure kind to its rule. Construct with NewTable;
// the zero value is not usable.
type Table struct {
	rules map[types.FailureKind]Rule
}

// defaults returns the built-in strategy for every failure kind.
// Restart handles plain failures; stuck restart loops need a full
// stop before start; disk pressure gets a single cleanup pass.
func defaults() map[types.FailureKind]Rule {
	return map[types.FailureKind]Rule{
		types.KindUnhealthy:       {Action: types.ActionRestart, Cooldown: 5 * time.Minute, MaxAttempts: 3},
		types.KindExited:          {Action: types.ActionRestart, Cooldown: 5 * time.Minute, MaxAttempts: 3},
		types.KindStuckRestarting: {Action: types.ActionStopThenStart, Cooldown: 5 * time.Minute, MaxAttempts: 3},
		types.KindHighMemory:      {Action: types.ActionRestart, Cooldown: 10 * time.Minute, MaxAttempts: 3},
		types.KindHighCPU:         {Action: types.ActionRestart, Cooldown: 10 * time.Minute, MaxAttempts: 3},
		types.KindDiskLow:         {Action: types.ActionCleanup, Cooldown: 30 * time.Minute, MaxAttempts: 1},
		types.KindNetworkError:    {Action: types.ActionRestart, Cooldown: 5 * time.Minute, MaxAttempts: 3},
	}
}

// NewTable builds the strategy table from built-in defaults merged with the
// configured per-kind overrides. Zero-valued override fields keep the
// default. Returns an error if an override names an unknown kind or action,
// or if the merged table would be inconsistent; the caller must treat any
// error as fatal.
func NewTable(overrides map[string]types.StrategyOverride) (*Table, error) {
	rules := defaults()

	for kindStr, override := range overrides {
		kind := types.FailureKind(kindStr)
		if !kind.Valid() {
			return nil, fmt.Errorf("strategy override for unknown failure kind %q", kindStr)
		}

		rule := rules[kind]
		if override.Action != "" {
			action := types.Action(override.Action)
			if !action.Valid() {
				return nil, fmt.Errorf("strategy for kind %q names unknown action %q", kindStr, override.Action)
			}
			rule.Action = action
		}
		if override.Cooldown != 0 {
			rule.Cooldown = override.Cooldown
		}
		if override.MaxAttempts != 0 {
			rule.MaxAttempts = override.MaxAttempts
		}
		rules[kind] = rule
	}

	// The table must cover every kind with a sane rule before the
	// controller is allowed to run.
	for _, kind := range types.AllFailureKinds {
		rule, ok := rules[kind]
		if !ok {
			return nil, fmt.Errorf("strategy table is missing failure kind %q", kind)
		}
		if !rule.Action.Valid() {
			return nil, fmt.Errorf("strategy for kind %q has invalid action %q", kind, rule.Action)
		}
		if rule.Cooldown <= 0 {
			return nil, fmt.Errorf("strategy for kind %q has non-positive cooldown %v", kind, rule.Cooldown)
		}
		if rule.MaxAttempts <= 0 {
			return nil, fmt.Errorf("strategy for kind %q has non-positive maxAttempts %d", kind, rule.MaxAttempts)
		}
	}

	return &Table{rules: rules}, nil
}

// Rule returns the rule for the given kind. The second return value is
// false only for kinds outside the closed set.
func (t *Table) Rule(kind types.FailureKind) (Rule, bool) {
	rule, ok := t.rules[kind]
	return rule, ok
}

// Kinds returns the covered failure kinds in sorted order.
func (t *Table) Kinds() []types.FailureKind {
	kinds := make([]types.FailureKind, 0, len(t.rules))
	for kind := range t.rules {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
