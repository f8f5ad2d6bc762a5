// Package reputation owns the block list: which source addresses are
// blocked, why, and until when.
package reputation

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

// AlertCounter supplies live per-source alert counts.
type AlertCounter interface {
	CountBySource() map[string]int
}

type Auditor interface {
	Append(action model.Action) model.Action
}

// Mirror propagates block list changes to an external enforcement point.
// Calls are made in per-IP order and must not block.
type Mirror interface {
	Blocked(entry model.BlockedIP)
	Unblocked(ip string)
}

const defaultReason = "Manual block"

// Manager is the block list. Entries are immutable values swapped in and
// out of a sync.Map; writes to one IP are serialized by that IP's mutex and
// never wait on another IP.
type Manager struct {
	entries sync.Map // ip -> *model.BlockedIP
	locks   sync.Map // ip -> *sync.Mutex

	alerts        AlertCounter
	audit         Auditor
	mirrors       []Mirror
	defaultReason string
	metrics       *metrics.Metrics
	logger        *logrus.Logger
	now           func() time.Time
}

func NewManager(alerts AlertCounter, audit Auditor, met *metrics.Metrics, logger *logrus.Logger) *Manager {
	return &Manager{
		alerts:        alerts,
		audit:         audit,
		defaultReason: defaultReason,
		metrics:       met,
		logger:        logger,
		now:           time.Now,
	}
}

// AddMirror registers a mirror. Call before the manager is in use.
func (m *Manager) AddMirror(mirror Mirror) {
	m.mirrors = append(m.mirrors, mirror)
}

func (m *Manager) lockFor(ip string) *sync.Mutex {
	if l, ok := m.locks.Load(ip); ok {
		return l.(*sync.Mutex)
	}
	l, _ := m.locks.LoadOrStore(ip, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// active returns the live entry for ip, evicting it if it has expired.
func (m *Manager) active(ip string, now time.Time) *model.BlockedIP {
	v, ok := m.entries.Load(ip)
	if !ok {
		return nil
	}
	entry := v.(*model.BlockedIP)
	if entry.Expired(now) {
		if m.entries.CompareAndDelete(ip, entry) {
			m.logger.WithField("ip", ip).Info("Block expired")
		}
		return nil
	}
	return entry
}

// Block adds ip to the block list or, if it is already blocked, updates the
// reason and duration in place. created reports whether a new entry was made.
func (m *Manager) Block(ip, reason, duration, actor string) (model.BlockedIP, bool, error) {
	canonical, err := model.CanonicalIP(ip)
	if err != nil {
		return model.BlockedIP{}, false, err
	}
	ttl, err := ParseBlockDuration(duration)
	if err != nil {
		return model.BlockedIP{}, false, err
	}
	if reason == "" {
		reason = m.defaultReason
	}
	if actor == "" {
		actor = model.ActorOperator
	}

	lock := m.lockFor(canonical)
	lock.Lock()

	now := m.now().UTC()
	existing := m.active(canonical, now)
	entry := &model.BlockedIP{
		IP:        canonical,
		BlockedAt: now,
		UpdatedAt: now,
		Reason:    reason,
		Duration:  formatBlockDuration(ttl),
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}
	created := existing == nil
	if !created {
		entry.BlockedAt = existing.BlockedAt
	}
	m.entries.Store(canonical, entry)

	details := fmt.Sprintf("Blocked %s: %s (%s)", canonical, reason, entry.Duration)
	if !created {
		details = fmt.Sprintf("Updated block on %s: %s (%s)", canonical, reason, entry.Duration)
	}
	m.audit.Append(model.Action{
		Kind:       model.ActionBlock,
		Target:     canonical,
		TargetType: model.TargetIP,
		Actor:      actor,
		Details:    details,
		Metadata: map[string]string{
			"reason":   reason,
			"duration": entry.Duration,
			"created":  strconv.FormatBool(created),
		},
	})
	for _, mirror := range m.mirrors {
		mirror.Blocked(*entry)
	}
	lock.Unlock()

	m.metrics.ReputationActions.WithLabelValues(string(model.ActionBlock)).Inc()
	m.logger.WithFields(logrus.Fields{
		"ip":       canonical,
		"reason":   reason,
		"duration": entry.Duration,
		"created":  created,
	}).Info("IP blocked")

	result := *entry
	result.AlertCount = m.alerts.CountBySource()[canonical]
	return result, created, nil
}

// Unblock removes ip from the block list.
func (m *Manager) Unblock(ip, actor string) error {
	canonical, err := model.CanonicalIP(ip)
	if err != nil {
		return err
	}
	if actor == "" {
		actor = model.ActorOperator
	}

	lock := m.lockFor(canonical)
	lock.Lock()

	existing := m.active(canonical, m.now())
	if existing == nil {
		lock.Unlock()
		return fmt.Errorf("%s: %w", canonical, model.ErrNotBlocked)
	}
	m.entries.Delete(canonical)

	m.audit.Append(model.Action{
		Kind:       model.ActionUnblock,
		Target:     canonical,
		TargetType: model.TargetIP,
		Actor:      actor,
		Details:    fmt.Sprintf("Unblocked %s (was: %s)", canonical, existing.Reason),
		Metadata: map[string]string{
			"reason":     existing.Reason,
			"blocked_at": existing.BlockedAt.Format(time.RFC3339),
		},
	})
	for _, mirror := range m.mirrors {
		mirror.Unblocked(canonical)
	}
	lock.Unlock()

	m.metrics.ReputationActions.WithLabelValues(string(model.ActionUnblock)).Inc()
	m.logger.WithField("ip", canonical).Info("IP unblocked")
	return nil
}

// IsBlocked reports whether ip is currently blocked. Malformed addresses are
// never blocked.
func (m *Manager) IsBlocked(ip string) bool {
	canonical, err := model.CanonicalIP(ip)
	if err != nil {
		return false
	}
	return m.active(canonical, m.now()) != nil
}

// Get returns the live entry for ip with its current alert count.
func (m *Manager) Get(ip string) (model.BlockedIP, error) {
	canonical, err := model.CanonicalIP(ip)
	if err != nil {
		return model.BlockedIP{}, err
	}
	entry := m.active(canonical, m.now())
	if entry == nil {
		return model.BlockedIP{}, fmt.Errorf("%s: %w", canonical, model.ErrNotBlocked)
	}
	result := *entry
	result.AlertCount = m.alerts.CountBySource()[canonical]
	return result, nil
}

// List returns every live entry, most recently blocked first.
func (m *Manager) List() []model.BlockedIP {
	now := m.now()
	counts := m.alerts.CountBySource()

	result := make([]model.BlockedIP, 0)
	m.entries.Range(func(key, _ any) bool {
		if entry := m.active(key.(string), now); entry != nil {
			b := *entry
			b.AlertCount = counts[b.IP]
			result = append(result, b)
		}
		return true
	})

	sort.Slice(result, func(i, j int) bool {
		if !result[i].BlockedAt.Equal(result[j].BlockedAt) {
			return result[i].BlockedAt.After(result[j].BlockedAt)
		}
		return result[i].IP < result[j].IP
	})
	return result
}

// Count returns the number of live entries.
func (m *Manager) Count() int {
	now := m.now()
	n := 0
	m.entries.Range(func(key, _ any) bool {
		if m.active(key.(string), now) != nil {
			n++
		}
		return true
	})
	return n
}
