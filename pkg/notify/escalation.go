package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// Escalation describes one attempt-budget exhaustion event.
type Escalation struct {
	// Service is the affected service, or types.SystemScope.
	Service string

	// Kind is the failure kind that exhausted its budget.
	Kind types.FailureKind

	// Attempts is the number of repair actions already dispatched.
	Attempts int

	// MaxAttempts is the configured budget for the kind.
	MaxAttempts int

	// LastAction names the repair action that was being applied.
	LastAction types.Action

	// Message carries the triggering event's detail line.
	Message string

	// Timestamp is when the escalation transition happened.
	Timestamp time.Time
}

// Escalator formats escalation events and hands them to a notifier. Send
// failures are logged, never propagated: a broken notification channel must
// not disturb the decision loop.
type Escalator struct {
	notifier types.Notifier
	logger   Logger
	hostname string
}

// NewEscalator creates an escalator. notifier may be nil, in which case
// escalations are logged only.
func NewEscalator(notifier types.Notifier, hostname string) *Escalator {
	return &Escalator{
		notifier: notifier,
		hostname: hostname,
	}
}

// SetLogger sets an optional logger for the escalator.
func (e *Escalator) SetLogger(logger Logger) {
	e.logger = logger
}

// Notify delivers one escalation. Called exactly once per incident, at the
// tracker's escalation transition.
func (e *Escalator) Notify(ctx context.Context, esc Escalation) {
	e.logWarnf("ESCALATION: %s/%s exhausted %d/%d attempts (last action %s)",
		esc.Service, esc.Kind, esc.Attempts, esc.MaxAttempts, esc.LastAction)

	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, e.format(esc)); err != nil {
		e.logErrorf("Failed to deliver escalation for %s/%s: %v", esc.Service, esc.Kind, err)
	}
}

func (e *Escalator) format(esc Escalation) string {
	host := esc.Service
	if e.hostname != "" {
		host = fmt.Sprintf("%s on %s", esc.Service, e.hostname)
	}

	text := fmt.Sprintf(
		"🚨 <b>Repair escalation</b>\n"+
			"Service: <code>%s</code>\n"+
			"Failure: <code>%s</code>\n"+
			"Attempts: %d/%d (last action: %s)\n"+
			"Time: %s\n",
		EscapeHTML(host),
		EscapeHTML(string(esc.Kind)),
		esc.Attempts, esc.MaxAttempts, esc.LastAction,
		esc.Timestamp.Format(time.RFC3339),
	)
	if esc.Message != "" {
		text += fmt.Sprintf("Detail: %s\n", EscapeHTML(esc.Message))
	}
	text += "Automated repair is suspended for this service until manual reset."
	return text
}

// logWarnf logs a warning message if a logger is configured.
func (e *Escalator) logWarnf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Warnf("[Escalator] "+format, args...)
	}
}

// logErrorf logs an error message if a logger is configured.
func (e *Escalator) logErrorf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Errorf("[Escalator] "+format, args...)
	}
}
