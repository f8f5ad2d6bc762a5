// Package audit keeps the append-only trail of every operator and system
// action. Entries are never updated. The in-memory trail can be capped, in
// which case the oldest entries fall out of memory while sinks keep the full
// record.
package audit

import (
	"sync"
	"sync/atomic"
	"time"

	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

// Sink receives every appended action, for example to persist it. Enqueue
// must not block.
type Sink interface {
	Enqueue(action model.Action)
}

type Filter struct {
	Target string
	Kind   model.ActionKind
}

// Log is an in-memory append-only action log. Readers work on an immutable
// snapshot and never wait for writers.
type Log struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]model.Action]
	nextID  int64
	max     int
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

func NewLog(met *metrics.Metrics, logger *logrus.Logger) *Log {
	l := &Log{
		nextID:  1,
		metrics: met,
		logger:  logger,
		now:     time.Now,
	}
	empty := make([]model.Action, 0)
	l.entries.Store(&empty)
	return l
}

// AddSink registers a sink. Call before the log is in use.
func (l *Log) AddSink(sink Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

// SetMaxEntries caps the in-memory trail at n entries, dropping the oldest.
// n <= 0 keeps everything. Call before the log is in use.
func (l *Log) SetMaxEntries(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max = n
	current := *l.entries.Load()
	trimmed := l.retain(current)
	l.entries.Store(&trimmed)
}

// retain reslices to the newest l.max entries. The backing array is reused
// until append reallocates, so trimming stays O(1).
func (l *Log) retain(entries []model.Action) []model.Action {
	if l.max > 0 && len(entries) > l.max {
		return entries[len(entries)-l.max:]
	}
	return entries
}

// Append assigns the next id and a timestamp and records the action.
func (l *Log) Append(action model.Action) model.Action {
	l.mu.Lock()
	action.ID = l.nextID
	l.nextID++
	if action.Timestamp.IsZero() {
		action.Timestamp = l.now().UTC()
	}
	if action.Actor == "" {
		action.Actor = model.ActorSystem
	}

	current := *l.entries.Load()
	// Appending past len never touches elements visible to readers.
	next := l.retain(append(current, action))
	l.entries.Store(&next)
	sinks := l.sinks
	l.mu.Unlock()

	l.metrics.AuditActions.WithLabelValues(string(action.Kind)).Inc()
	for _, sink := range sinks {
		sink.Enqueue(action)
	}

	l.logger.WithFields(logrus.Fields{
		"id":     action.ID,
		"action": action.Kind,
		"target": action.Target,
	}).Debug("Action recorded")

	return action
}

// Restore seeds the log with previously persisted actions, for example
// after a restart. It must run before any Append.
func (l *Log) Restore(actions []model.Action) {
	l.mu.Lock()
	defer l.mu.Unlock()

	restored := make([]model.Action, 0, len(actions))
	for _, a := range actions {
		restored = append(restored, a)
		if a.ID >= l.nextID {
			l.nextID = a.ID + 1
		}
	}
	restored = l.retain(restored)
	l.entries.Store(&restored)
}

// List returns matching actions newest first. limit <= 0 returns all.
func (l *Log) List(filter Filter, limit int) []model.Action {
	entries := *l.entries.Load()

	result := make([]model.Action, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		a := entries[i]
		if filter.Target != "" && a.Target != filter.Target {
			continue
		}
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		result = append(result, a)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

func (l *Log) Len() int {
	return len(*l.entries.Load())
}
