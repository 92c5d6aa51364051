// Package alertfeed ingests external alerts into the collector's inbound
// queue, via an Alertmanager-style webhook receiver and a Prometheus poller.
package alertfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/supporttools/compose-doctor/pkg/collector"
	"github.com/supporttools/compose-doctor/pkg/types"
)

// Logger provides optional logging functionality for the alert feed.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// webhookPayload is the Alertmanager webhook body, reduced to the fields
// the classifier needs.
type webhookPayload struct {
	Alerts []webhookAlert `json:"alerts"`
}

type webhookAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
}

// Webhook receives Alertmanager-style webhook posts and pushes the firing
// alerts onto the inbound queue.
type Webhook struct {
	queue   *collector.AlertQueue
	address string
	logger  Logger

	httpServer *http.Server
}

// NewWebhook creates a webhook receiver listening on address.
func NewWebhook(queue *collector.AlertQueue, address string) (*Webhook, error) {
	if queue == nil {
		return nil, fmt.Errorf("alert queue cannot be nil")
	}
	if address == "" {
		return nil, fmt.Errorf("listen address cannot be empty")
	}
	return &Webhook{queue: queue, address: address}, nil
}

// SetLogger sets an optional logger for the receiver.
func (w *Webhook) SetLogger(logger Logger) {
	w.logger = logger
}

// Start begins serving in a background goroutine.
func (w *Webhook) Start() error {
	if w.httpServer != nil {
		return fmt.Errorf("webhook receiver already started")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", w.handleWebhook)

	w.httpServer = &http.Server{
		Addr:              w.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		w.logInfof("Receiving alert webhooks on %s/webhook", w.address)
		if err := w.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			w.logErrorf("Webhook receiver failed: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the receiver down.
func (w *Webhook) Stop(ctx context.Context) error {
	if w.httpServer == nil {
		return nil
	}
	return w.httpServer.Shutdown(ctx)
}

func (w *Webhook) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.logWarnf("Rejecting malformed webhook body: %v", err)
		http.Error(rw, "malformed payload", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, wa := range payload.Alerts {
		if wa.Status != "" && wa.Status != "firing" {
			continue
		}
		alert, ok := alertFromLabels(wa.Labels, wa.Annotations["value"])
		if !ok {
			continue
		}
		w.queue.Push(alert)
		accepted++
	}

	w.logInfof("Webhook delivered %d alerts, accepted %d", len(payload.Alerts), accepted)
	rw.WriteHeader(http.StatusOK)
}

// alertFromLabels builds a queue alert from Prometheus-style labels. The
// service label falls back to container, then instance.
func alertFromLabels(labels map[string]string, rawValue string) (types.Alert, bool) {
	name := labels["alertname"]
	if name == "" {
		return types.Alert{}, false
	}

	service := labels["service"]
	if service == "" {
		service = labels["container"]
	}
	if service == "" {
		service = labels["instance"]
	}

	value := 0.0
	if rawValue != "" {
		if parsed, err := strconv.ParseFloat(rawValue, 64); err == nil {
			value = parsed
		}
	}

	return types.Alert{
		Name:     name,
		Service:  service,
		Severity: labels["severity"],
		Value:    value,
	}, true
}

// logInfof logs an informational message if a logger is configured.
func (w *Webhook) logInfof(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Infof("[AlertWebhook] "+format, args...)
	}
}

// logWarnf logs a warning message if a logger is configured.
func (w *Webhook) logWarnf(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Warnf("[AlertWebhook] "+format, args...)
	}
}

// logErrorf logs an error message if a logger is configured.
func (w *Webhook) logErrorf(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Errorf("[AlertWebhook] "+format, args...)
	}
}
