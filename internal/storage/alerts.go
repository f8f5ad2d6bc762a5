package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Auditor records every write made to the store.
type Auditor interface {
	Append(action model.Action) model.Action
}

// AlertStore keeps alerts in memory. Writers are serialized and publish a
// new immutable snapshot; readers load the current snapshot without locking.
type AlertStore struct {
	mu        sync.Mutex
	alerts    atomic.Pointer[[]model.Alert]
	maxAlerts int
	audit     Auditor
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time

	subsMu sync.RWMutex
	subs   map[*AlertSubscriber]bool
}

type AlertSubscriber struct {
	ID      string
	Channel chan model.Alert
	Filter  AlertFilter
}

type AlertFilter struct {
	Severity   model.Severity
	SourceIP   string
	ThreatType string
	Since      time.Time
	Limit      int
}

func (f AlertFilter) matches(a *model.Alert) bool {
	if f.Severity != 0 && a.Severity != f.Severity {
		return false
	}
	if f.SourceIP != "" && a.SourceIP != f.SourceIP {
		return false
	}
	if f.ThreatType != "" && a.ThreatType != f.ThreatType {
		return false
	}
	if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

func NewAlertStore(maxAlerts int, audit Auditor, met *metrics.Metrics, logger *logrus.Logger) *AlertStore {
	if maxAlerts <= 0 {
		maxAlerts = 10000
	}
	s := &AlertStore{
		maxAlerts: maxAlerts,
		audit:     audit,
		metrics:   met,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[*AlertSubscriber]bool),
	}
	empty := make([]model.Alert, 0)
	s.alerts.Store(&empty)
	return s
}

// Record persists a verdict as a new alert and returns it.
func (s *AlertStore) Record(verdict model.Verdict, event model.Event) model.Alert {
	alert := model.NewAlert(verdict, event)
	alert.ID = uuid.NewString()
	alert.Timestamp = s.now().UTC()

	s.mu.Lock()
	current := *s.alerts.Load()
	if len(current) >= s.maxAlerts {
		current = current[len(current)-s.maxAlerts+1:]
	}
	// Appending past len never touches elements visible to readers.
	next := append(current, alert)
	s.alerts.Store(&next)
	s.mu.Unlock()

	s.metrics.AlertsRaised.WithLabelValues(alert.Severity.String(), alert.ThreatType).Inc()
	s.audit.Append(model.Action{
		Kind:       model.ActionAlertRaised,
		Target:     alert.ID,
		TargetType: model.TargetAlert,
		Actor:      model.ActorSystem,
		Details:    fmt.Sprintf("%s %s from %s", alert.Severity, alert.ThreatType, alert.SourceIP),
		Metadata:   alertSummary(alert),
	})

	s.notifySubscribers(alert)
	return alert
}

// List returns matching alerts newest first.
func (s *AlertStore) List(filter AlertFilter) []model.Alert {
	alerts := *s.alerts.Load()

	result := make([]model.Alert, 0)
	for i := len(alerts) - 1; i >= 0; i-- {
		if !filter.matches(&alerts[i]) {
			continue
		}
		result = append(result, alerts[i])
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

func (s *AlertStore) Get(id string) (model.Alert, error) {
	alerts := *s.alerts.Load()
	for i := len(alerts) - 1; i >= 0; i-- {
		if alerts[i].ID == id {
			return alerts[i], nil
		}
	}
	return model.Alert{}, fmt.Errorf("alert %s: %w", id, model.ErrNotFound)
}

// Delete removes one alert. The DELETE_ALERT action keeps a summary of it.
func (s *AlertStore) Delete(id string, actor string) error {
	s.mu.Lock()
	current := *s.alerts.Load()
	idx := -1
	for i := range current {
		if current[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("alert %s: %w", id, model.ErrNotFound)
	}

	deleted := current[idx]
	next := make([]model.Alert, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	s.alerts.Store(&next)
	s.mu.Unlock()

	s.audit.Append(model.Action{
		Kind:       model.ActionDeleteAlert,
		Target:     id,
		TargetType: model.TargetAlert,
		Actor:      actor,
		Details:    fmt.Sprintf("Deleted %s %s alert from %s", deleted.Severity, deleted.ThreatType, deleted.SourceIP),
		Metadata:   alertSummary(deleted),
	})

	s.logger.Infof("Alert %s deleted by %s", id, actor)
	return nil
}

// Clear removes every alert and returns how many were removed.
func (s *AlertStore) Clear(actor string) int {
	s.mu.Lock()
	current := *s.alerts.Load()
	empty := make([]model.Alert, 0)
	s.alerts.Store(&empty)
	s.mu.Unlock()

	counts := model.SeverityCounts()
	for i := range current {
		counts[current[i].Severity.String()]++
	}
	metadata := make(map[string]string, len(counts))
	for sev, n := range counts {
		metadata[sev] = fmt.Sprintf("%d", n)
	}

	s.audit.Append(model.Action{
		Kind:       model.ActionClearAlerts,
		Target:     "alerts",
		TargetType: model.TargetStore,
		Actor:      actor,
		Details:    fmt.Sprintf("Cleared %d alerts", len(current)),
		Metadata:   metadata,
	})

	s.logger.Infof("Cleared %d alerts", len(current))
	return len(current)
}

// Snapshot returns the current alerts in recording order. The slice is
// shared and must not be modified.
func (s *AlertStore) Snapshot() []model.Alert {
	return *s.alerts.Load()
}

func (s *AlertStore) Count() int {
	return len(*s.alerts.Load())
}

// CountBySource counts alerts per source IP from one snapshot.
func (s *AlertStore) CountBySource() map[string]int {
	alerts := *s.alerts.Load()
	counts := make(map[string]int)
	for i := range alerts {
		counts[alerts[i].SourceIP]++
	}
	return counts
}

// Subscriber methods
func (s *AlertStore) SubscribeAlerts(sub *AlertSubscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs[sub] = true
}

func (s *AlertStore) UnsubscribeAlerts(sub *AlertSubscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.subs[sub] {
		delete(s.subs, sub)
		close(sub.Channel)
	}
}

func (s *AlertStore) notifySubscribers(alert model.Alert) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for sub := range s.subs {
		if !sub.Filter.matches(&alert) {
			continue
		}

		select {
		case sub.Channel <- alert:
		default:
			// slow subscriber, skip
		}
	}
}

func alertSummary(a model.Alert) map[string]string {
	return map[string]string{
		"severity":    a.Severity.String(),
		"threat_type": a.ThreatType,
		"source_ip":   a.SourceIP,
	}
}
