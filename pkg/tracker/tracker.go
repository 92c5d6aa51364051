// Package tracker implements the per-(service, failure-kind) repair state
// machine. It is the core's principal correctness guarantee: it bounds total
// repair actions per incident and removes the possibility of infinite
// restart loops.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/supporttools/compose-doctor/pkg/strategy"
	"github.com/supporttools/compose-doctor/pkg/types"
)

// Logger provides optional logging functionality for the tracker.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Key identifies one repair state record.
type Key struct {
	// Service is the service name, or types.SystemScope.
	Service string

	// Kind is the failure kind.
	Kind types.FailureKind
}

// String returns the canonical "service/kind" form of the key.
func (k Key) String() string {
	return k.Service + "/" + string(k.Kind)
}

// RepairState is the durable in-memory memory for one key. It is created
// lazily on first failure and deleted only by reset (manual or self-heal).
type RepairState struct {
	// AttemptCount is the number of actions actually dispatched for the
	// current incident. It never decrements except by reset.
	AttemptCount int `json:"attemptCount"`

	// LastActionAt is when the last action was dispatched, zero if none.
	LastActionAt time.Time `json:"lastActionAt,omitempty"`

	// CooldownUntil is the end of the current cooldown window, zero if unset.
	CooldownUntil time.Time `json:"cooldownUntil,omitempty"`

	// Escalated marks the key as exhausted: no further actions fire until
	// the record is reset.
	Escalated bool `json:"escalated"`
}

// Decision is the tracker's verdict for one failure event.
type Decision int

const (
	// DecisionAct dispatches the rule's action: the attempt was counted
	// and the cooldown window has started.
	DecisionAct Decision = iota

	// DecisionSuppress observes the event without dispatching: the key is
	// cooling down or already escalated. No counter changes.
	DecisionSuppress

	// DecisionEscalate marks the attempt budget exhausted. It is returned
	// exactly once per unresolved incident; the notifier must be invoked
	// at this transition and never again until the record resets.
	DecisionEscalate
)

// String returns the metric label for the decision.
func (d Decision) String() string {
	switch d {
	case DecisionAct:
		return "acted"
	case DecisionSuppress:
		return "suppressed"
	case DecisionEscalate:
		return "escalated"
	default:
		return "unknown"
	}
}

// Verdict is the full result of a decision, including the rule that applies
// and a snapshot of the state after the transition.
type Verdict struct {
	Decision Decision
	Rule     strategy.Rule
	State    RepairState
}

// Tracker owns the RepairState map. All decisions for a key are atomic:
// the read-decide-write sequence runs under one lock so two ticks can never
// both decide to act before either's cooldown is recorded.
type Tracker struct {
	mu     sync.Mutex
	states map[Key]*RepairState
	table  *strategy.Table
	logger Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a tracker with an empty state map. The strategy table must be
// complete (see strategy.NewTable).
func New(table *strategy.Table) (*Tracker, error) {
	if table == nil {
		return nil, fmt.Errorf("strategy table cannot be nil")
	}
	return &Tracker{
		states: make(map[Key]*RepairState),
		table:  table,
		now:    time.Now,
	}, nil
}

// SetLogger sets an optional logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// SetClock overrides the tracker's clock. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Decide runs the state machine for one failure event and returns the
// verdict. Transitions:
//
//   - Idle, or cooling with the window elapsed: count the attempt, start
//     the cooldown, return DecisionAct.
//   - Cooling with the window still open: return DecisionSuppress without
//     touching counters.
//   - Attempt budget exhausted: set Escalated and return DecisionEscalate
//     exactly once; later events return DecisionSuppress until reset.
//
// A corrupted record (negative attempt count) aborts only this key's
// processing with an error; the caller logs it loudly and continues.
func (t *Tracker) Decide(event types.FailureEvent) (Verdict, error) {
	key := Key{Service: event.Service, Kind: event.Kind}

	rule, ok := t.table.Rule(event.Kind)
	if !ok {
		return Verdict{}, fmt.Errorf("no strategy rule for failure kind %q", event.Kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.states[key]
	if !exists {
		state = &RepairState{}
		t.states[key] = state
	}

	if state.AttemptCount < 0 {
		return Verdict{}, fmt.Errorf("state corruption for key %s: negative attempt count %d", key, state.AttemptCount)
	}

	now := t.now()

	if state.Escalated {
		t.logInfof("Key %s already escalated, suppressing event", key)
		return Verdict{Decision: DecisionSuppress, Rule: rule, State: *state}, nil
	}

	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		t.logInfof("Key %s cooling down until %s, suppressing event",
			key, state.CooldownUntil.Format(time.RFC3339))
		return Verdict{Decision: DecisionSuppress, Rule: rule, State: *state}, nil
	}

	if state.AttemptCount+1 > rule.MaxAttempts {
		state.Escalated = true
		t.logWarnf("Key %s exhausted %d/%d attempts, escalating",
			key, state.AttemptCount, rule.MaxAttempts)
		return Verdict{Decision: DecisionEscalate, Rule: rule, State: *state}, nil
	}

	state.AttemptCount++
	state.LastActionAt = now
	state.CooldownUntil = now.Add(rule.Cooldown)
	t.logInfof("Key %s acting (attempt %d/%d), cooldown until %s",
		key, state.AttemptCount, rule.MaxAttempts, state.CooldownUntil.Format(time.RFC3339))

	return Verdict{Decision: DecisionAct, Rule: rule, State: *state}, nil
}

// ObserveHealthy resets self-healed keys. A key resets to a fresh Idle state
// when its service was observed healthy this tick and produced no failure
// event of the key's kind. This applies to escalated keys too: independent
// recovery clears the record the same way.
//
// System-scoped keys never self-heal; there is no health observation for
// the system scope, so they clear only via Reset.
func (t *Tracker) ObserveHealthy(observed map[string]types.ServiceState, events []types.FailureEvent) {
	failed := make(map[Key]bool, len(events))
	for _, ev := range events {
		failed[Key{Service: ev.Service, Kind: ev.Kind}] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for key, state := range t.states {
		if key.Service == types.SystemScope {
			continue
		}
		if failed[key] {
			continue
		}
		svc, seen := observed[key.Service]
		if !seen || !svc.Healthy() {
			continue
		}
		if state.AttemptCount > 0 || state.Escalated {
			t.logInfof("Key %s observed healthy, resetting to idle (had %d attempts, escalated=%v)",
				key, state.AttemptCount, state.Escalated)
		}
		delete(t.states, key)
	}
}

// Reset clears the record for one key (manual intervention). Returns true
// if a record existed.
func (t *Tracker) Reset(service string, kind types.FailureKind) bool {
	key := Key{Service: service, Kind: kind}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.states[key]; !ok {
		return false
	}
	delete(t.states, key)
	t.logInfof("Key %s manually reset", key)
	return true
}

// State returns a snapshot of the record for one key. The second return
// value is false when no record exists.
func (t *Tracker) State(service string, kind types.FailureKind) (RepairState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[Key{Service: service, Kind: kind}]
	if !ok {
		return RepairState{}, false
	}
	return *state, true
}

// Snapshot returns a copy of every tracked record, for the status surface.
func (t *Tracker) Snapshot() map[Key]RepairState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[Key]RepairState, len(t.states))
	for key, state := range t.states {
		out[key] = *state
	}
	return out
}

// logInfof logs an informational message if a logger is configured.
func (t *Tracker) logInfof(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Infof("[Tracker] "+format, args...)
	}
}

// logWarnf logs a warning message if a logger is configured.
func (t *Tracker) logWarnf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Warnf("[Tracker] "+format, args...)
	}
}
