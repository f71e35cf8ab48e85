package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// State is an anomaly's position in the new -> emitted -> delivered|failed
// state machine (spec §4.5).
type State string

const (
	StateNew      State = "new"
	StateEmitted  State = "emitted"
	StateDelivered State = "delivered"
	StateFailed   State = "failed"
)

// Record is one anomaly as tracked by the in-process log the query API
// reads from. This is distinct from the durable storage sink: the log is
// a bounded in-memory view kept for fast, read-only querying (spec §4.7),
// the storage sink is the system of record.
type Record struct {
	Event      telemetry.AnomalyEvent
	State      State
	Suppressed int64
}

// Log is a bounded, time-ordered, in-memory anomaly history. Capacity
// bounds memory the same way the baseline store's max_keys does (spec §5).
type Log struct {
	mu       sync.RWMutex
	capacity int
	records  []Record // oldest first
}

// NewLog builds a Log retaining at most capacity records (oldest evicted
// first). capacity <= 0 means unbounded.
func NewLog(capacity int) *Log {
	return &Log{capacity: capacity}
}

// Append adds a newly emitted anomaly in StateEmitted.
func (l *Log) Append(e telemetry.AnomalyEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Record{Event: e, State: StateEmitted})
	if l.capacity > 0 && len(l.records) > l.capacity {
		l.records = l.records[len(l.records)-l.capacity:]
	}
}

// MarkDelivered transitions e's record to StateDelivered.
func (l *Log) MarkDelivered(e telemetry.AnomalyEvent) {
	l.setState(e.AnomalyID, StateDelivered)
}

// MarkFailed transitions e's record to StateFailed.
func (l *Log) MarkFailed(e telemetry.AnomalyEvent) {
	l.setState(e.AnomalyID, StateFailed)
}

func (l *Log) setState(id uuid.UUID, state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Event.AnomalyID == id {
			l.records[i].State = state
			return
		}
	}
}

// Query filters records by time range, severity, service, and model, and
// paginates by offset-style cursor (spec §4.7/§6). Cursor is the index to
// resume from; an empty next cursor means no more pages.
type Query struct {
	Since    time.Time
	Until    time.Time
	Severity telemetry.Severity // empty = any
	Service  string             // empty = any
	Model    string             // empty = any
	Limit    int
	Cursor   int
}

// QueryResult is one page of anomalies plus the cursor for the next page.
type QueryResult struct {
	Items      []Record
	NextCursor int
	HasMore    bool
}

func (l *Log) Query(q Query) QueryResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var matched []Record
	for _, r := range l.records {
		if !q.Since.IsZero() && r.Event.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && r.Event.Timestamp.After(q.Until) {
			continue
		}
		if q.Severity != "" && r.Event.Severity != q.Severity {
			continue
		}
		if q.Service != "" && r.Event.Key.ServiceID != q.Service {
			continue
		}
		if q.Model != "" && r.Event.Key.ModelID != q.Model {
			continue
		}
		matched = append(matched, r)
	}
	// Most recent first, matching an operator dashboard's natural order.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Event.Timestamp.After(matched[j].Event.Timestamp)
	})

	start := q.Cursor
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[start:end]

	result := QueryResult{Items: page}
	if end < len(matched) {
		result.NextCursor = end
		result.HasMore = true
	}
	return result
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
