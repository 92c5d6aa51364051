// Package dispatch executes repair actions against the control plane.
//
// The dispatcher enforces single-flight per service: at most one action is
// in progress for a given service at any time, and a new decision for a
// busy service is deferred to the next tick rather than issued concurrently.
// Actions are idempotent by the control-plane collaborator's contract.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// Logger provides optional logging functionality for the dispatcher.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ResultFunc receives the outcome of every completed dispatch. It is called
// from the dispatch goroutine; implementations must be safe for concurrent
// use and must not block.
type ResultFunc func(record Record)

// Dispatcher runs actions through the control plane with a per-call timeout.
type Dispatcher struct {
	plane   types.ControlPlane
	timeout time.Duration
	dryRun  bool
	history *History
	logger  Logger
	onDone  ResultFunc

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// New creates a dispatcher. timeout bounds each control-plane call; it must
// be positive.
func New(plane types.ControlPlane, timeout time.Duration, history *History) (*Dispatcher, error) {
	if plane == nil {
		return nil, fmt.Errorf("control plane cannot be nil")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("action timeout must be positive, got %v", timeout)
	}
	if history == nil {
		history = NewHistory(0)
	}
	return &Dispatcher{
		plane:    plane,
		timeout:  timeout,
		history:  history,
		inFlight: make(map[string]struct{}),
	}, nil
}

// SetLogger sets an optional logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetDryRun enables or disables dry-run mode. In dry-run mode every other
// code path runs normally but the control-plane call is skipped and the
// dispatch is recorded as a successful dry-run.
func (d *Dispatcher) SetDryRun(dryRun bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dryRun = dryRun
}

// SetResultFunc registers a callback invoked after each dispatch completes.
func (d *Dispatcher) SetResultFunc(fn ResultFunc) {
	d.onDone = fn
}

// TryAcquire marks the service in-flight if it is not already. It must be
// called before the tracker's decision so the check-and-insert is atomic
// with the decision step; the caller releases the slot with Release when no
// action is dispatched.
func (d *Dispatcher) TryAcquire(service string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.inFlight[service]; busy {
		return false
	}
	d.inFlight[service] = struct{}{}
	return true
}

// Release frees the in-flight slot for a service.
func (d *Dispatcher) Release(service string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, service)
}

// InFlight returns the services currently holding a flight slot.
func (d *Dispatcher) InFlight() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, 0, len(d.inFlight))
	for service := range d.inFlight {
		out = append(out, service)
	}
	return out
}

// Dispatch executes the action asynchronously and returns immediately. The
// caller must already hold the service's flight slot via TryAcquire; the
// slot is released when the action completes or times out. The call runs
// detached from the caller's cancellation: shutdown must never interrupt an
// action mid-flight (a stop_then_start cut between stop and start leaves a
// half-applied repair), so the only bound is the dispatcher's own timeout
// and the drain point is Wait.
//
// An action failure is reported through the result callback and the
// history; it never propagates back into the decision loop. The attempt
// was already counted by the tracker, so repeated failures still converge
// to escalation.
func (d *Dispatcher) Dispatch(ctx context.Context, action types.Action, service string, kind types.FailureKind, attempt int) {
	d.mu.Lock()
	dryRun := d.dryRun
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.Release(service)

		start := time.Now()
		var err error

		if dryRun {
			d.logInfof("[DRY-RUN] Would execute %s on %s (kind=%s attempt=%d)", action, service, kind, attempt)
		} else {
			err = d.execute(ctx, action, service)
		}

		record := Record{
			Service:   service,
			Kind:      kind,
			Action:    action,
			Attempt:   attempt,
			StartTime: start,
			Duration:  time.Since(start),
			Success:   err == nil,
			DryRun:    dryRun,
		}
		if err != nil {
			record.Error = err.Error()
			d.logErrorf("Action %s failed for %s: %v", action, service, err)
		} else if !dryRun {
			d.logInfof("Action %s completed for %s (attempt %d)", action, service, attempt)
		}

		d.history.Add(record)
		if d.onDone != nil {
			d.onDone(record)
		}
	}()
}

// execute runs one control-plane call with timeout and panic recovery. The
// call context carries the caller's values but not its cancellation.
func (d *Dispatcher) execute(ctx context.Context, action types.Action, service string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s on %s: %v", action, service, r)
		}
	}()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.plane.Execute(callCtx, action, service); err != nil {
		return fmt.Errorf("control plane %s on %s: %w", action, service, err)
	}
	return nil
}

// Wait blocks until all in-flight dispatches have completed or timed out.
// Called during shutdown; no action is force-killed mid-flight.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// History returns the dispatcher's history ring.
func (d *Dispatcher) History() *History {
	return d.history
}

// logInfof logs an informational message if a logger is configured.
func (d *Dispatcher) logInfof(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Infof("[Dispatcher] "+format, args...)
	}
}

// logErrorf logs an error message if a logger is configured.
func (d *Dispatcher) logErrorf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Errorf("[Dispatcher] "+format, args...)
	}
}
