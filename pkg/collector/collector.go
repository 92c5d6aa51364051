// Package collector merges direct control-plane polls with asynchronous
// alert events into a normalized, deduplicated failure-event stream.
package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// Logger provides optional logging functionality for the collector.
// If a logger is not provided, logging operations are silently ignored.
type Logger interface {
	// Infof logs an informational message with formatting.
	Infof(format string, args ...interface{})

	// Warnf logs a warning message with formatting.
	Warnf(format string, args ...interface{})

	// Errorf logs an error message with formatting.
	Errorf(format string, args ...interface{})
}

// Snapshot is the result of one collection pass: the classified failure
// events for this tick plus the set of services that were observed, keyed
// by name. The tracker uses the observed set to detect self-healed keys.
type Snapshot struct {
	// Events holds at most one FailureEvent per (service, kind), ordered
	// by descending kind priority, then by service name.
	Events []types.FailureEvent

	// Observed holds every service state the poll returned, including
	// healthy and opted-out services.
	Observed map[string]types.ServiceState
}

// Collector produces one Snapshot per tick from the control plane and the
// alert queue.
type Collector struct {
	plane      types.ControlPlane
	queue      *AlertQueue
	classifier *Classifier
	logger     Logger
	now        func() time.Time
}

// New creates a collector reading from the given control plane and alert
// queue, classifying with the given classifier.
func New(plane types.ControlPlane, queue *AlertQueue, classifier *Classifier) (*Collector, error) {
	if plane == nil {
		return nil, fmt.Errorf("control plane cannot be nil")
	}
	if queue == nil {
		return nil, fmt.Errorf("alert queue cannot be nil")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	return &Collector{
		plane:      plane,
		queue:      queue,
		classifier: classifier,
		now:        time.Now,
	}, nil
}

// SetLogger sets an optional logger for the collector.
func (c *Collector) SetLogger(logger Logger) {
	c.logger = logger
}

// Collect performs one collection pass: it polls the control plane, drains
// the alert queue, classifies everything, and dedupes to one event per
// (service, kind). Direct observations take precedence over alert-derived
// events for the same key; alerts may lag reality.
//
// A poll error is logged and yields an empty observed set for this tick;
// queued alerts still drain so the tick is never aborted.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	now := c.now()

	observed := make(map[string]types.ServiceState)
	services, err := c.plane.ListServices(ctx)
	if err != nil {
		c.logWarnf("Control plane poll failed, continuing tick with alerts only: %v", err)
	} else {
		for _, svc := range services {
			observed[svc.Name] = svc
		}
	}

	// key -> event; direct observations are written first and never
	// overwritten by alerts.
	type eventKey struct {
		service string
		kind    types.FailureKind
	}
	events := make(map[eventKey]types.FailureEvent)
	// bestKind tracks the single highest-priority kind per service so only
	// one event per service survives classification.
	bestKind := make(map[string]types.FailureKind)

	record := func(service string, kind types.FailureKind, source types.EventSource, value float64, message string) {
		if current, ok := bestKind[service]; ok {
			if kind.Priority() < current.Priority() {
				return
			}
			if kind.Priority() > current.Priority() {
				delete(events, eventKey{service, current})
			}
		}
		key := eventKey{service, kind}
		if existing, ok := events[key]; ok {
			// Direct observation is authoritative for the same key.
			if existing.Source == types.SourceObservation {
				return
			}
		}
		bestKind[service] = kind
		events[key] = types.FailureEvent{
			Service:   service,
			Kind:      kind,
			Source:    source,
			Timestamp: now,
			Value:     value,
			Message:   message,
		}
	}

	for _, svc := range observed {
		if c.classifier.OptedOut(svc) {
			c.logInfof("Service %s carries the opt-out label, skipping classification", svc.Name)
			continue
		}
		kind, ok := c.classifier.ClassifyState(svc)
		if !ok {
			continue
		}
		record(svc.Name, kind, types.SourceObservation, 0,
			fmt.Sprintf("observed lifecycle=%s health=%s restarts=%d", svc.Lifecycle, svc.Health, svc.RestartCount))
	}

	for _, alert := range c.queue.Drain() {
		kind, target, ok := c.classifier.ClassifyAlert(alert)
		if !ok {
			c.logInfof("Ignoring alert %q with no known failure kind", alert.Name)
			continue
		}
		// Alerts for services the opt-out filter excludes are dropped the
		// same as direct observations.
		if svc, seen := observed[target]; seen && c.classifier.OptedOut(svc) {
			continue
		}
		record(target, kind, types.SourceAlert, alert.Value,
			fmt.Sprintf("alert %s severity=%s", alert.Name, alert.Severity))
	}

	ordered := make([]types.FailureEvent, 0, len(events))
	for _, ev := range events {
		ordered = append(ordered, ev)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Kind.Priority() != ordered[j].Kind.Priority() {
			return ordered[i].Kind.Priority() > ordered[j].Kind.Priority()
		}
		return ordered[i].Service < ordered[j].Service
	})

	return Snapshot{Events: ordered, Observed: observed}
}

// logInfof logs an informational message if a logger is configured.
func (c *Collector) logInfof(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Infof("[Collector] "+format, args...)
	}
}

// logWarnf logs a warning message if a logger is configured.
func (c *Collector) logWarnf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warnf("[Collector] "+format, args...)
	}
}
