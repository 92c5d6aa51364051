package alertfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/supporttools/compose-doctor/pkg/collector"
)

// pollerResponse is the Prometheus /api/v1/alerts response, reduced to the
// fields the classifier needs.
type pollerResponse struct {
	Status string `json:"status"`
	Data   struct {
		Alerts []polledAlert `json:"alerts"`
	} `json:"data"`
}

type polledAlert struct {
	Labels map[string]string `json:"labels"`
	State  string            `json:"state"`
	Value  string            `json:"value"`
}

// Poller periodically queries a Prometheus server for firing alerts and
// pushes them onto the inbound queue. It complements the webhook receiver
// for setups without an Alertmanager route.
type Poller struct {
	queue   *collector.AlertQueue
	baseURL string
	period  time.Duration
	client  *http.Client
	logger  Logger
}

// NewPoller creates a poller querying baseURL every period.
func NewPoller(queue *collector.AlertQueue, baseURL string, period time.Duration) (*Poller, error) {
	if queue == nil {
		return nil, fmt.Errorf("alert queue cannot be nil")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("prometheus URL cannot be empty")
	}
	if period <= 0 {
		return nil, fmt.Errorf("poll period must be positive, got %v", period)
	}
	return &Poller{
		queue:   queue,
		baseURL: strings.TrimRight(baseURL, "/"),
		period:  period,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// SetLogger sets an optional logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// Run polls until the context is cancelled. Poll failures are logged and
// retried on the next period; the feed degrades, it never stops.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	p.logInfof("Polling %s for firing alerts every %v", p.baseURL, p.period)

	for {
		select {
		case <-ctx.Done():
			p.logInfof("Alert poller stopping")
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logWarnf("Alert poll failed: %v", err)
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	url := p.baseURL + "/api/v1/alerts"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build alerts request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alerts endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed pollerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode alerts response: %w", err)
	}
	if parsed.Status != "success" {
		return fmt.Errorf("alerts endpoint reported status %q", parsed.Status)
	}

	accepted := 0
	for _, pa := range parsed.Data.Alerts {
		if pa.State != "firing" {
			continue
		}
		rawValue := pa.Value
		if rawValue == "" {
			rawValue = pa.Labels["value"]
		}
		alert, ok := alertFromLabels(pa.Labels, rawValue)
		if !ok {
			continue
		}
		p.queue.Push(alert)
		accepted++
	}

	if accepted > 0 {
		p.logInfof("Poll accepted %d firing alerts", accepted)
	}
	return nil
}

// logInfof logs an informational message if a logger is configured.
func (p *Poller) logInfof(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Infof("[AlertPoller] "+format, args...)
	}
}

// logWarnf logs a warning message if a logger is configured.
func (p *Poller) logWarnf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warnf("[AlertPoller] "+format, args...)
	}
}
