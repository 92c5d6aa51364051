package collector

import (
	"context"
	"fmt"
	"testing"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// mockPlane is a scripted control plane for collector tests.
type mockPlane struct {
	services []types.ServiceState
	listErr  error
}

func (m *mockPlane) ListServices(ctx context.Context) ([]types.ServiceState, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.services, nil
}

func (m *mockPlane) Execute(ctx context.Context, action types.Action, service string) error {
	return nil
}

func newTestCollector(t *testing.T, plane *mockPlane, queue *AlertQueue) *Collector {
	t.Helper()

	col, err := New(plane, queue, NewClassifier("auto_repair", "false", 5))
	if err != nil {
		t.Fatalf("New() unexpected error = %v", err)
	}
	return col
}

func TestNewValidation(t *testing.T) {
	queue := NewAlertQueue(0)
	classifier := NewClassifier("auto_repair", "false", 5)

	if _, err := New(nil, queue, classifier); err == nil {
		t.Errorf("New() with nil plane expected error but got none")
	}
	if _, err := New(&mockPlane{}, nil, classifier); err == nil {
		t.Errorf("New() with nil queue expected error but got none")
	}
	if _, err := New(&mockPlane{}, queue, nil); err == nil {
		t.Errorf("New() with nil classifier expected error but got none")
	}
}

func TestCollectObservations(t *testing.T) {
	plane := &mockPlane{services: []types.ServiceState{
		{Name: "web", Lifecycle: types.LifecycleExited},
		{Name: "db", Lifecycle: types.LifecycleRunning, Health: types.HealthHealthy},
		{Name: "cache", Lifecycle: types.LifecycleRunning, Health: types.HealthUnhealthy},
	}}
	queue := NewAlertQueue(0)
	col := newTestCollector(t, plane, queue)

	snapshot := col.Collect(context.Background())

	if len(snapshot.Observed) != 3 {
		t.Errorf("Observed has %d services, want 3 (healthy services included)", len(snapshot.Observed))
	}
	if len(snapshot.Events) != 2 {
		t.Fatalf("Events has %d entries, want 2", len(snapshot.Events))
	}

	// Exited (priority 70) sorts before unhealthy (priority 50).
	if snapshot.Events[0].Service != "web" || snapshot.Events[0].Kind != types.KindExited {
		t.Errorf("Events[0] = %s/%s, want web/exited", snapshot.Events[0].Service, snapshot.Events[0].Kind)
	}
	if snapshot.Events[1].Service != "cache" || snapshot.Events[1].Kind != types.KindUnhealthy {
		t.Errorf("Events[1] = %s/%s, want cache/unhealthy", snapshot.Events[1].Service, snapshot.Events[1].Kind)
	}
	for _, ev := range snapshot.Events {
		if ev.Source != types.SourceObservation {
			t.Errorf("event %s/%s source = %q, want observation", ev.Service, ev.Kind, ev.Source)
		}
	}
}

// TestCollectOnePerService verifies the single-event-per-service rule: when
// a direct observation and an alert both apply, only the highest-priority
// kind survives.
func TestCollectOnePerService(t *testing.T) {
	plane := &mockPlane{services: []types.ServiceState{
		{Name: "web", Lifecycle: types.LifecycleRunning, Health: types.HealthUnhealthy},
	}}
	queue := NewAlertQueue(0)
	queue.Push(types.Alert{Name: "HighMemoryUsage", Service: "web", Value: 95})
	col := newTestCollector(t, plane, queue)

	snapshot := col.Collect(context.Background())

	if len(snapshot.Events) != 1 {
		t.Fatalf("Events has %d entries, want 1 (one event per service)", len(snapshot.Events))
	}
	if snapshot.Events[0].Kind != types.KindUnhealthy {
		t.Errorf("surviving kind = %q, want unhealthy (direct outranks high_memory)", snapshot.Events[0].Kind)
	}
}

// TestCollectDirectBeatsAlert verifies an alert for the same (service, kind)
// never overwrites the direct observation.
func TestCollectDirectBeatsAlert(t *testing.T) {
	plane := &mockPlane{services: []types.ServiceState{
		{Name: "web", Lifecycle: types.LifecycleRunning, Health: types.HealthUnhealthy},
	}}
	queue := NewAlertQueue(0)
	queue.Push(types.Alert{Name: "ContainerUnhealthy", Service: "web", Value: 1})
	col := newTestCollector(t, plane, queue)

	snapshot := col.Collect(context.Background())

	if len(snapshot.Events) != 1 {
		t.Fatalf("Events has %d entries, want 1", len(snapshot.Events))
	}
	if snapshot.Events[0].Source != types.SourceObservation {
		t.Errorf("event source = %q, want observation to win over the alert", snapshot.Events[0].Source)
	}
}

func TestCollectAlertOnlyService(t *testing.T) {
	// The alert names a service the poll does not know. The event is still
	// produced; the tracker will simply never self-heal it via observation.
	plane := &mockPlane{}
	queue := NewAlertQueue(0)
	queue.Push(types.Alert{Name: "HighCPUUsage", Service: "batch", Value: 88})
	col := newTestCollector(t, plane, queue)

	snapshot := col.Collect(context.Background())

	if len(snapshot.Events) != 1 {
		t.Fatalf("Events has %d entries, want 1", len(snapshot.Events))
	}
	ev := snapshot.Events[0]
	if ev.Service != "batch" || ev.Kind != types.KindHighCPU || ev.Source != types.SourceAlert {
		t.Errorf("event = %+v, want batch/high_cpu from alert", ev)
	}
	if ev.Value != 88 {
		t.Errorf("event value = %v, want 88", ev.Value)
	}
}

func TestCollectPollFailure(t *testing.T) {
	plane := &mockPlane{listErr: fmt.Errorf("socket gone")}
	queue := NewAlertQueue(0)
	queue.Push(types.Alert{Name: "LowDiskSpace"})
	col := newTestCollector(t, plane, queue)

	snapshot := col.Collect(context.Background())

	// The tick degrades to alerts-only instead of aborting.
	if len(snapshot.Observed) != 0 {
		t.Errorf("Observed has %d services after poll failure, want 0", len(snapshot.Observed))
	}
	if len(snapshot.Events) != 1 || snapshot.Events[0].Service != types.SystemScope {
		t.Fatalf("Events = %+v, want the queued system/disk_low alert", snapshot.Events)
	}
}

func TestCollectOptOut(t *testing.T) {
	plane := &mockPlane{services: []types.ServiceState{
		{Name: "web", Lifecycle: types.LifecycleExited, Labels: map[string]string{"auto_repair": "false"}},
	}}
	queue := NewAlertQueue(0)
	queue.Push(types.Alert{Name: "HighMemoryUsage", Service: "web", Value: 99})
	col := newTestCollector(t, plane, queue)

	snapshot := col.Collect(context.Background())

	if len(snapshot.Events) != 0 {
		t.Errorf("Events = %+v, want none for an opted-out service", snapshot.Events)
	}
	// The service still appears in the observed set.
	if _, ok := snapshot.Observed["web"]; !ok {
		t.Errorf("opted-out service missing from Observed")
	}
}

func TestCollectDrainsQueue(t *testing.T) {
	plane := &mockPlane{}
	queue := NewAlertQueue(0)
	queue.Push(types.Alert{Name: "HighMemoryUsage", Service: "web"})
	col := newTestCollector(t, plane, queue)

	col.Collect(context.Background())

	if queue.Len() != 0 {
		t.Errorf("queue Len() = %d after collect, want 0", queue.Len())
	}

	// Unknown alert names are consumed too, just ignored.
	queue.Push(types.Alert{Name: "NoSuchRule", Service: "web"})
	snapshot := col.Collect(context.Background())
	if len(snapshot.Events) != 0 || queue.Len() != 0 {
		t.Errorf("unknown alert produced events=%d queued=%d, want 0/0", len(snapshot.Events), queue.Len())
	}
}
