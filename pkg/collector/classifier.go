package collector

import (
	"github.com/supporttools/compose-doctor/pkg/types"
)

// defaultAlertKinds maps well-known alert rule names to failure kinds.
// Unknown alert names are ignored: the core does not parse alert-rule DSLs.
var defaultAlertKinds = map[string]types.FailureKind{
	"InstanceDown":        types.KindUnhealthy,
	"ContainerUnhealthy":  types.KindUnhealthy,
	"ContainerExited":     types.KindExited,
	"HighMemoryUsage":     types.KindHighMemory,
	"ContainerHighMemory": types.KindHighMemory,
	"HighCPUUsage":        types.KindHighCPU,
	"ContainerHighCPU":    types.KindHighCPU,
	"LowDiskSpace":        types.KindDiskLow,
	"DiskSpaceLow":        types.KindDiskLow,
	"NetworkErrors":       types.KindNetworkError,
	"NetworkUnreachable":  types.KindNetworkError,
}

// Classifier assigns failure kinds to raw signals. It owns the opt-out
// filter and the priority rule between direct observation and alert-derived
// signals.
type Classifier struct {
	optOutLabel    string
	optOutValue    string
	stormThreshold int
	alertKinds     map[string]types.FailureKind
}

// NewClassifier creates a classifier with the given opt-out label convention
// and restart-storm threshold. A non-positive threshold disables restart-storm
// detection for running services (a service stuck in the restarting lifecycle
// state is always classified).
func NewClassifier(optOutLabel, optOutValue string, stormThreshold int) *Classifier {
	return &Classifier{
		optOutLabel:    optOutLabel,
		optOutValue:    optOutValue,
		stormThreshold: stormThreshold,
		alertKinds:     defaultAlertKinds,
	}
}

// OptedOut reports whether the service carries the opt-out label. Opted-out
// services are filtered before classification: no FailureEvent is ever
// produced for them.
func (c *Classifier) OptedOut(svc types.ServiceState) bool {
	if c.optOutLabel == "" {
		return false
	}
	value, ok := svc.Labels[c.optOutLabel]
	return ok && value == c.optOutValue
}

// ClassifyState maps a directly observed service state to a failure kind.
// Returns false when the state is not a failure.
func (c *Classifier) ClassifyState(svc types.ServiceState) (types.FailureKind, bool) {
	switch svc.Lifecycle {
	case types.LifecycleExited, types.LifecycleDead:
		return types.KindExited, true
	case types.LifecycleRestarting:
		return types.KindStuckRestarting, true
	}

	// A running service that has been restarted too many times is in a
	// restart loop even if the runtime currently reports it running.
	if c.stormThreshold > 0 && svc.RestartCount > c.stormThreshold {
		return types.KindStuckRestarting, true
	}

	if svc.Health == types.HealthUnhealthy {
		return types.KindUnhealthy, true
	}

	return "", false
}

// ClassifyAlert maps a raw alert to a failure kind and target key. disk_low
// is system-scoped: it always targets types.SystemScope regardless of the
// alert's service label. Alerts with unknown names, or service-scoped alerts
// without a service label, return false.
func (c *Classifier) ClassifyAlert(alert types.Alert) (types.FailureKind, string, bool) {
	kind, ok := c.alertKinds[alert.Name]
	if !ok {
		return "", "", false
	}

	if kind == types.KindDiskLow {
		return kind, types.SystemScope, true
	}

	if alert.Service == "" {
		return "", "", false
	}
	return kind, alert.Service, true
}
