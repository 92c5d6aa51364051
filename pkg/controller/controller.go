// Package controller runs the repair decision loop: collect, decide,
// dispatch, escalate.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/supporttools/compose-doctor/pkg/collector"
	"github.com/supporttools/compose-doctor/pkg/dispatch"
	"github.com/supporttools/compose-doctor/pkg/metrics"
	"github.com/supporttools/compose-doctor/pkg/notify"
	"github.com/supporttools/compose-doctor/pkg/tracker"
	"github.com/supporttools/compose-doctor/pkg/types"
)

// Logger provides optional logging functionality for the controller.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Controller drives the repair loop. One tick runs collection, healthy-key
// reset, and per-event decisions; dispatches run asynchronously under the
// single-flight guard.
type Controller struct {
	collector  *collector.Collector
	tracker    *tracker.Tracker
	dispatcher *dispatch.Dispatcher
	escalator  *notify.Escalator
	metrics    *metrics.Metrics
	logger     Logger

	mu           sync.Mutex
	tickInterval time.Duration
	startedAt    time.Time
}

// New creates a controller. escalator and m may be nil; escalations are then
// logged only and metrics are not recorded.
func New(col *collector.Collector, trk *tracker.Tracker, disp *dispatch.Dispatcher, esc *notify.Escalator, m *metrics.Metrics, tickInterval time.Duration) (*Controller, error) {
	if col == nil {
		return nil, fmt.Errorf("collector cannot be nil")
	}
	if trk == nil {
		return nil, fmt.Errorf("tracker cannot be nil")
	}
	if disp == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if tickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %v", tickInterval)
	}

	c := &Controller{
		collector:    col,
		tracker:      trk,
		dispatcher:   disp,
		escalator:    esc,
		metrics:      m,
		tickInterval: tickInterval,
	}
	disp.SetResultFunc(c.onDispatchDone)
	return c, nil
}

// SetLogger sets an optional logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// Run executes the repair loop until the context is cancelled. The tick in
// progress completes before Run returns, and all in-flight dispatches are
// waited for; no action is abandoned mid-flight.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.startedAt = time.Now()
	interval := c.tickInterval
	c.mu.Unlock()

	c.logInfof("Repair loop starting with tick interval %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First tick immediately rather than one interval in.
	c.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logInfof("Repair loop stopping, waiting for in-flight actions")
			c.dispatcher.Wait()
			c.logInfof("Repair loop stopped")
			return nil
		case <-ticker.C:
			c.mu.Lock()
			if interval != c.tickInterval {
				interval = c.tickInterval
				ticker.Reset(interval)
				c.logInfof("Tick interval changed to %v", interval)
			}
			c.mu.Unlock()

			c.tick(ctx)
		}
	}
}

// tick runs one full decision pass.
func (c *Controller) tick(ctx context.Context) {
	start := time.Now()

	snapshot := c.collector.Collect(ctx)
	c.tracker.ObserveHealthy(snapshot.Observed, snapshot.Events)

	for _, event := range snapshot.Events {
		c.handleEvent(ctx, event)
	}

	c.updateGauges()

	if c.metrics != nil {
		c.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

// handleEvent runs the single-flight guard and the tracker decision for one
// event. The flight slot is acquired before the decision so a concurrent
// completion cannot race the state transition; it is released immediately
// unless an action was dispatched.
func (c *Controller) handleEvent(ctx context.Context, event types.FailureEvent) {
	if !c.dispatcher.TryAcquire(event.Service) {
		c.logInfof("Service %s has an action in flight, deferring %s to next tick",
			event.Service, event.Kind)
		return
	}

	verdict, err := c.tracker.Decide(event)
	if err != nil {
		c.dispatcher.Release(event.Service)
		c.logErrorf("Decision failed for %s/%s, skipping this key: %v",
			event.Service, event.Kind, err)
		return
	}

	if c.metrics != nil {
		c.metrics.DecisionsTotal.WithLabelValues(
			event.Service, string(event.Kind), verdict.Decision.String()).Inc()
	}

	switch verdict.Decision {
	case tracker.DecisionAct:
		c.dispatcher.Dispatch(ctx, verdict.Rule.Action, event.Service, event.Kind, verdict.State.AttemptCount)

	case tracker.DecisionSuppress:
		c.dispatcher.Release(event.Service)

	case tracker.DecisionEscalate:
		c.dispatcher.Release(event.Service)
		if c.metrics != nil {
			c.metrics.EscalationsTotal.WithLabelValues(event.Service, string(event.Kind)).Inc()
		}
		if c.escalator != nil {
			c.escalator.Notify(ctx, notify.Escalation{
				Service:     event.Service,
				Kind:        event.Kind,
				Attempts:    verdict.State.AttemptCount,
				MaxAttempts: verdict.Rule.MaxAttempts,
				LastAction:  verdict.Rule.Action,
				Message:     event.Message,
				Timestamp:   event.Timestamp,
			})
		}
	}
}

// onDispatchDone records metrics for every completed dispatch. Called from
// dispatch goroutines.
func (c *Controller) onDispatchDone(record dispatch.Record) {
	if c.metrics == nil {
		return
	}
	success := "false"
	if record.Success {
		success = "true"
	}
	c.metrics.RepairAttemptsTotal.WithLabelValues(
		record.Service, string(record.Action), success).Inc()
	c.metrics.ActionDuration.WithLabelValues(string(record.Action)).Observe(record.Duration.Seconds())
	c.metrics.ServiceLastRepairTimestamp.WithLabelValues(record.Service).SetToCurrentTime()
}

// updateGauges refreshes the tracked-state gauges from the tracker snapshot.
func (c *Controller) updateGauges() {
	if c.metrics == nil {
		return
	}

	states := c.tracker.Snapshot()
	c.metrics.TrackedKeys.Set(float64(len(states)))
	c.metrics.InFlightActions.Set(float64(len(c.dispatcher.InFlight())))

	counts := make(map[string]int)
	for key, state := range states {
		counts[key.Service] += state.AttemptCount
	}
	c.metrics.ServiceFailureCount.Reset()
	for service, count := range counts {
		c.metrics.ServiceFailureCount.WithLabelValues(service).Set(float64(count))
	}
}

// UpdateSettings applies runtime-tunable settings from a reloaded config:
// tick interval and dry-run mode. Everything else requires a restart.
func (c *Controller) UpdateSettings(settings types.GlobalSettings) {
	c.mu.Lock()
	if settings.TickInterval > 0 && settings.TickInterval != c.tickInterval {
		c.tickInterval = settings.TickInterval
	}
	c.mu.Unlock()

	c.dispatcher.SetDryRun(settings.DryRun)
}

// Reset clears the repair record for one key. Exposed on the operational
// HTTP surface; it is the only way a system-scoped or escalated key clears
// without independent recovery.
func (c *Controller) Reset(service string, kind types.FailureKind) bool {
	return c.tracker.Reset(service, kind)
}

// StatusReport is the document served at /status.
type StatusReport struct {
	Uptime   string                         `json:"uptime"`
	States   map[string]tracker.RepairState `json:"states"`
	InFlight []string                       `json:"inFlight"`
	History  []dispatch.Record              `json:"history"`
}

// Status builds the operational status report: every tracked key, the
// services with actions in flight, and the recent repair history.
func (c *Controller) Status() StatusReport {
	c.mu.Lock()
	startedAt := c.startedAt
	c.mu.Unlock()

	uptime := ""
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt).Round(time.Second).String()
	}

	states := make(map[string]tracker.RepairState)
	for key, state := range c.tracker.Snapshot() {
		states[key.String()] = state
	}

	inFlight := c.dispatcher.InFlight()
	sort.Strings(inFlight)

	return StatusReport{
		Uptime:   uptime,
		States:   states,
		InFlight: inFlight,
		History:  c.dispatcher.History().Recent(50),
	}
}

// logInfof logs an informational message if a logger is configured.
func (c *Controller) logInfof(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Infof("[Controller] "+format, args...)
	}
}

// logErrorf logs an error message if a logger is configured.
func (c *Controller) logErrorf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Errorf("[Controller] "+format, args...)
	}
}
