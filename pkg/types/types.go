// Package types defines the core interfaces and types for Compose Doctor.
package types

import (
	"context"
	"time"
)

// FailureKind categorizes a detected failure. The set is closed: the
// strategy table must cover every kind, and classification never produces
// a kind outside this set.
type FailureKind string

const (
	// KindUnhealthy indicates a running service whose health check is failing.
	KindUnhealthy FailureKind = "unhealthy"

	// KindExited indicates a service whose container has exited or died.
	KindExited FailureKind = "exited"

	// KindStuckRestarting indicates a service caught in a restart loop.
	KindStuckRestarting FailureKind = "stuck_restarting"

	// KindHighMemory indicates memory usage above the alerting threshold.
	KindHighMemory FailureKind = "high_memory"

	// KindHighCPU indicates CPU usage above the alerting threshold.
	KindHighCPU FailureKind = "high_cpu"

	// KindDiskLow indicates low disk space. This kind is system-scoped:
	// it is always classified against SystemScope, never a single service.
	KindDiskLow FailureKind = "disk_low"

	// KindNetworkError indicates network connectivity problems.
	KindNetworkError FailureKind = "network_error"
)

// AllFailureKinds lists every valid failure kind. The strategy table is
// validated against this list at startup.
var AllFailureKinds = []FailureKind{
	KindUnhealthy,
	KindExited,
	KindStuckRestarting,
	KindHighMemory,
	KindHighCPU,
	KindDiskLow,
	KindNetworkError,
}

// Valid reports whether k is a member of the closed failure kind set.
func (k FailureKind) Valid() bool {
	for _, known := range AllFailureKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Direct reports whether k is derived from direct lifecycle/health
// observation rather than a resource alert. Direct kinds outrank
// alert-derived kinds during classification.
func (k FailureKind) Direct() bool {
	switch k {
	case KindUnhealthy, KindExited, KindStuckRestarting:
		return true
	}
	return false
}

// Priority returns the classification precedence of k. When multiple kinds
// apply to one service in a single tick, only the highest-priority kind is
// classified. Direct kinds always rank above alert-derived kinds.
func (k FailureKind) Priority() int {
	switch k {
	case KindExited:
		return 70
	case KindStuckRestarting:
		return 60
	case KindUnhealthy:
		return 50
	case KindHighMemory:
		return 40
	case KindHighCPU:
		return 30
	case KindNetworkError:
		return 20
	case KindDiskLow:
		return 10
	default:
		return 0
	}
}

// SystemScope is the synthetic key used for failures that are not tied to
// any single service, such as disk_low.
const SystemScope = "system"

// EventSource identifies where a failure event originated.
type EventSource string

const (
	// SourceObservation marks events derived from direct control-plane polls.
	// Observation events are authoritative and take precedence over alerts.
	SourceObservation EventSource = "observation"

	// SourceAlert marks events derived from the alert feed, which may lag.
	SourceAlert EventSource = "alert"
)

// FailureEvent is a normalized failure signal for one (service, kind) pair.
// Events are immutable and short-lived: the collector produces at most one
// per (service, kind) per tick and the tracker consumes each exactly once.
type FailureEvent struct {
	// Service is the service name, or SystemScope for system-level failures.
	Service string

	// Kind is the classified failure kind.
	Kind FailureKind

	// Source records whether the event came from direct observation or
	// from the alert feed.
	Source EventSource

	// Timestamp is when the event was produced.
	Timestamp time.Time

	// Value carries an optional metric value from the originating alert
	// (for example a memory percentage). Zero when not applicable.
	Value float64

	// Message is a human-readable description of the failure.
	Message string
}

// Action identifies a repair action. Actions form a small closed enum; each
// variant must be idempotent by the control-plane collaborator's contract.
type Action string

const (
	// ActionRestart restarts the service if it is running, otherwise starts it.
	ActionRestart Action = "restart"

	// ActionStopThenStart forces a full stop before starting, for stuck
	// states a plain restart cannot fix.
	ActionStopThenStart Action = "stop_then_start"

	// ActionCleanup performs a system-level prune plus bounded log pruning.
	// It has no target service.
	ActionCleanup Action = "cleanup"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionRestart, ActionStopThenStart, ActionCleanup:
		return true
	}
	return false
}

// LifecycleState is the container lifecycle state reported by the control plane.
type LifecycleState string

const (
	LifecycleRunning    LifecycleState = "running"
	LifecycleExited     LifecycleState = "exited"
	LifecycleRestarting LifecycleState = "restarting"
	LifecycleDead       LifecycleState = "dead"
	LifecycleCreated    LifecycleState = "created"
	LifecyclePaused     LifecycleState = "paused"
	LifecycleRemoving   LifecycleState = "removing"
)

// HealthState is the health-check result reported by the control plane.
type HealthState string

const (
	// HealthHealthy indicates the health check is passing.
	HealthHealthy HealthState = "healthy"

	// HealthUnhealthy indicates the health check is failing.
	HealthUnhealthy HealthState = "unhealthy"

	// HealthStarting indicates the health check grace period has not elapsed.
	HealthStarting HealthState = "starting"

	// HealthNone indicates the service has no health check configured.
	HealthNone HealthState = "none"
)

// ServiceState describes one service as last observed from the control plane.
// It is owned by the observation collector, refreshed every poll, and never
// mutated elsewhere.
type ServiceState struct {
	// Name is the service identity.
	Name string

	// Lifecycle is the raw container lifecycle state.
	Lifecycle LifecycleState

	// Health is the health-check result, HealthNone if no check is configured.
	Health HealthState

	// RestartCount is the number of restarts the runtime has recorded for
	// the container. Used to detect restart storms.
	RestartCount int

	// Labels are the container labels, including the auto-repair opt-out label.
	Labels map[string]string
}

// Healthy reports whether the service looks fully healthy: running, with a
// passing (or absent) health check. A healthy observation resets the repair
// state for the service.
func (s ServiceState) Healthy() bool {
	if s.Lifecycle != LifecycleRunning {
		return false
	}
	return s.Health == HealthHealthy || s.Health == HealthNone
}

// Alert is a raw alert delivered by the alert-feed collaborator. Webhook
// pushes and periodic pulls both produce Alerts; the collector treats them
// uniformly.
type Alert struct {
	// Name is the alert rule name (for example "HighMemoryUsage").
	Name string

	// Service is the service label carried by the alert, empty for
	// system-level alerts.
	Service string

	// Severity is the alert severity label.
	Severity string

	// Value is the observed metric value, when the feed provides one.
	Value float64
}

// ControlPlane is the container control-plane collaborator. Implementations
// must make every Action idempotent: executing the same action twice on an
// already-repaired service yields the same end state.
type ControlPlane interface {
	// ListServices returns the current state of all managed services.
	// A failure to inspect one service must not fail the whole call;
	// that service is simply omitted.
	ListServices(ctx context.Context) ([]ServiceState, error)

	// Execute performs the given action against a service, or against the
	// system for system-scoped actions (service == SystemScope).
	Execute(ctx context.Context, action Action, service string) error
}

// Notifier is the notification-transport collaborator used for escalations.
type Notifier interface {
	// Send delivers a notification message. Errors are logged by the
	// caller and never propagate into the repair loop.
	Send(ctx context.Context, text string) error
}
