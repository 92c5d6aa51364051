package dispatch

import (
	"sync"
	"time"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// Record is one completed dispatch in the history ring.
type Record struct {
	// Service is the target service, or types.SystemScope.
	Service string `json:"service"`

	// Kind is the failure kind that triggered the action.
	Kind types.FailureKind `json:"kind"`

	// Action is the repair action that ran.
	Action types.Action `json:"action"`

	// Attempt is the attempt number this dispatch counted as.
	Attempt int `json:"attempt"`

	// StartTime and Duration describe the execution window.
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Success indicates whether the action completed without error.
	Success bool `json:"success"`

	// Error holds the failure message, empty on success.
	Error string `json:"error,omitempty"`

	// DryRun marks records where the action was logged but not executed.
	DryRun bool `json:"dryRun,omitempty"`
}

// History is a bounded ring of completed dispatch records, oldest first.
type History struct {
	mu      sync.Mutex
	records []Record
	max     int
}

// NewHistory creates a history keeping at most max records. A non-positive
// max disables recording.
func NewHistory(max int) *History {
	return &History{max: max}
}

// Add appends a record, trimming the oldest entries past the cap.
func (h *History) Add(record Record) {
	if h.max <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)
	if len(h.records) > h.max {
		h.records = h.records[len(h.records)-h.max:]
	}
}

// Recent returns a copy of the most recent limit records, oldest first.
// A non-positive limit returns everything.
func (h *History) Recent(limit int) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}

	out := make([]Record, limit)
	copy(out, h.records[len(h.records)-limit:])
	return out
}

// Len returns the current number of records.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}
