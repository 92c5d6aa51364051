package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/supporttools/compose-doctor/pkg/collector"
	"github.com/supporttools/compose-doctor/pkg/types"
)

func TestRegisterUnregister(t *testing.T) {
	registry := NewRegistry()
	m, err := NewMetrics("compose_doctor", nil)
	if err != nil {
		t.Fatalf("NewMetrics() unexpected error = %v", err)
	}

	if err := m.Register(registry); err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	// Double registration must fail cleanly.
	if err := m.Register(registry); err == nil {
		t.Errorf("second Register() expected error but got none")
	}

	m.Unregister(registry)
	if err := m.Register(registry); err != nil {
		t.Errorf("Register() after Unregister() unexpected error = %v", err)
	}
}

func TestMetricsExposition(t *testing.T) {
	registry := NewRegistry()
	m, err := NewMetrics("compose_doctor", nil)
	if err != nil {
		t.Fatalf("NewMetrics() unexpected error = %v", err)
	}
	if err := m.Register(registry); err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	m.RepairAttemptsTotal.WithLabelValues("web", "restart", "true").Inc()
	m.DecisionsTotal.WithLabelValues("web", "unhealthy", "acted").Inc()
	m.EscalationsTotal.WithLabelValues("web", "unhealthy").Inc()
	m.ServiceFailureCount.WithLabelValues("web").Set(2)
	m.TrackedKeys.Set(1)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() unexpected error = %v", err)
	}

	found := make(map[string]bool)
	for _, family := range families {
		found[family.GetName()] = true
	}
	for _, want := range []string{
		"compose_doctor_repair_attempts_total",
		"compose_doctor_decisions_total",
		"compose_doctor_escalations_total",
		"compose_doctor_service_failure_count",
		"compose_doctor_tracked_keys",
		"go_goroutines",
	} {
		if !found[want] {
			t.Errorf("metric family %q missing from exposition", want)
		}
	}
}

// TestAlertsDroppedCounter wires the queue's drop callback to the counter the
// way main does and verifies drops reach the exposition.
func TestAlertsDroppedCounter(t *testing.T) {
	registry := NewRegistry()
	m, err := NewMetrics("compose_doctor", nil)
	if err != nil {
		t.Fatalf("NewMetrics() unexpected error = %v", err)
	}
	if err := m.Register(registry); err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	queue := collector.NewAlertQueue(1)
	queue.SetDropFunc(m.AlertsDroppedTotal.Inc)

	queue.Push(types.Alert{Name: "InstanceDown", Service: "web"})
	queue.Push(types.Alert{Name: "InstanceDown", Service: "db"})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() unexpected error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != "compose_doctor_alerts_dropped_total" {
			continue
		}
		if got := family.GetMetric()[0].GetCounter().GetValue(); got != 1 {
			t.Errorf("alerts_dropped_total = %v, want 1", got)
		}
		return
	}
	t.Errorf("compose_doctor_alerts_dropped_total missing from exposition")
}

func TestHandleStatus(t *testing.T) {
	server, err := NewServer(NewRegistry(), ":0", "/metrics")
	if err != nil {
		t.Fatalf("NewServer() unexpected error = %v", err)
	}

	// Unconfigured surface answers 503.
	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d without StatusFunc, want 503", rec.Code)
	}

	server.SetStatusFunc(func() interface{} {
		return map[string]string{"uptime": "5m"}
	})
	rec = httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"uptime"`) {
		t.Errorf("status body missing report: %s", rec.Body.String())
	}
}

func TestHandleReset(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		query      string
		existed    bool
		wantStatus int
	}{
		{name: "existing record", method: http.MethodPost, query: "service=web&kind=unhealthy", existed: true, wantStatus: http.StatusOK},
		{name: "missing record", method: http.MethodPost, query: "service=web&kind=unhealthy", existed: false, wantStatus: http.StatusNotFound},
		{name: "system scope", method: http.MethodPost, query: "service=system&kind=disk_low", existed: true, wantStatus: http.StatusOK},
		{name: "get rejected", method: http.MethodGet, query: "service=web&kind=unhealthy", wantStatus: http.StatusMethodNotAllowed},
		{name: "missing params", method: http.MethodPost, query: "service=web", wantStatus: http.StatusBadRequest},
		{name: "unknown kind", method: http.MethodPost, query: "service=web&kind=meltdown", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(NewRegistry(), ":0", "/metrics")
			if err != nil {
				t.Fatalf("NewServer() unexpected error = %v", err)
			}

			var gotService string
			var gotKind types.FailureKind
			server.SetResetFunc(func(service string, kind types.FailureKind) bool {
				gotService = service
				gotKind = kind
				return tt.existed
			})

			req := httptest.NewRequest(tt.method, "/reset?"+tt.query, nil)
			rec := httptest.NewRecorder()
			server.handleReset(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (gotService == "" || !gotKind.Valid()) {
				t.Errorf("reset callback got service=%q kind=%q", gotService, gotKind)
			}
		})
	}
}

func TestNewServerValidation(t *testing.T) {
	if _, err := NewServer(nil, ":0", "/metrics"); err == nil {
		t.Errorf("NewServer() with nil registry expected error but got none")
	}
	if _, err := NewServer(NewRegistry(), "", "/metrics"); err == nil {
		t.Errorf("NewServer() with empty address expected error but got none")
	}
}
