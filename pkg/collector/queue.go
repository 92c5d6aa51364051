package collector

import (
	"sync"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// DefaultQueueCapacity bounds the number of alerts buffered between ticks.
const DefaultQueueCapacity = 256

// DropFunc is invoked once per alert dropped due to a full queue. It is
// called from the pushing goroutine and must not block.
type DropFunc func()

// AlertQueue buffers alert events that arrive asynchronously between ticks.
// Webhook pushes and poller pulls both feed the same queue; the collector
// drains it once at each tick boundary, giving a single linear decision
// path instead of two control paths that could race.
type AlertQueue struct {
	mu       sync.Mutex
	alerts   []types.Alert
	capacity int
	dropped  uint64
	onDrop   DropFunc
}

// NewAlertQueue creates a queue holding at most capacity pending alerts.
// A non-positive capacity selects DefaultQueueCapacity.
func NewAlertQueue(capacity int) *AlertQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &AlertQueue{
		alerts:   make([]types.Alert, 0, capacity),
		capacity: capacity,
	}
}

// SetDropFunc registers a callback invoked for every dropped alert.
func (q *AlertQueue) SetDropFunc(fn DropFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDrop = fn
}

// Push enqueues an alert for the next tick. When the queue is full the
// alert is dropped and counted; a full queue means the loop is already
// saturated with pending signals, and alerts re-fire on their own.
func (q *AlertQueue) Push(alert types.Alert) bool {
	q.mu.Lock()
	if len(q.alerts) >= q.capacity {
		q.dropped++
		fn := q.onDrop
		q.mu.Unlock()
		if fn != nil {
			fn()
		}
		return false
	}
	q.alerts = append(q.alerts, alert)
	q.mu.Unlock()
	return true
}

// Drain removes and returns all pending alerts in arrival order.
func (q *AlertQueue) Drain() []types.Alert {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.alerts) == 0 {
		return nil
	}
	drained := q.alerts
	q.alerts = make([]types.Alert, 0, q.capacity)
	return drained
}

// Len returns the number of pending alerts.
func (q *AlertQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.alerts)
}

// Dropped returns the total number of alerts dropped due to a full queue.
func (q *AlertQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
