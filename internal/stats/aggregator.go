// Package stats rolls up engine counters for the dashboard.
package stats

import (
	"sort"
	"time"

	"inidars/internal/intake"
	"inidars/internal/model"
)

const (
	topOffenders = 10
	recentAlerts = 10
)

type AlertSnapshotter interface {
	Snapshot() []model.Alert
}

type BlockCounter interface {
	Count() int
}

type EventCounter interface {
	Counters() intake.Counters
}

type Offender struct {
	IP       string    `json:"ip"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

type Snapshot struct {
	TotalEvents     int64          `json:"total_events"`
	TotalAlerts     int            `json:"total_alerts"`
	SeverityCounts  map[string]int `json:"severity_counts"`
	AttackTypes     map[string]int `json:"attack_types"`
	TopOffendingIPs []Offender     `json:"top_offending_ips"`
	AlertsLast24h   int            `json:"alerts_last_24h"`
	BlockedIPsCount int            `json:"blocked_ips_count"`
	DroppedEvents   int64          `json:"dropped_events"`
	RejectedEvents  int64          `json:"rejected_events"`
	RecentAlerts    []model.Alert  `json:"recent_alerts"`
	Timestamp       time.Time      `json:"timestamp"`
}

type Aggregator struct {
	alerts AlertSnapshotter
	blocks BlockCounter
	events EventCounter
	now    func() time.Time
}

func NewAggregator(alerts AlertSnapshotter, blocks BlockCounter, events EventCounter) *Aggregator {
	return &Aggregator{alerts: alerts, blocks: blocks, events: events, now: time.Now}
}

// Snapshot computes every figure from one alert snapshot, so the counts are
// consistent with each other.
func (a *Aggregator) Snapshot() Snapshot {
	alerts := a.alerts.Snapshot()
	now := a.now().UTC()
	dayAgo := now.Add(-24 * time.Hour)

	snap := Snapshot{
		TotalAlerts:     len(alerts),
		SeverityCounts:  model.SeverityCounts(),
		AttackTypes:     make(map[string]int),
		BlockedIPsCount: a.blocks.Count(),
		RecentAlerts:    make([]model.Alert, 0, recentAlerts),
		Timestamp:       now,
	}
	if a.events != nil {
		counters := a.events.Counters()
		snap.TotalEvents = counters.Received
		snap.DroppedEvents = counters.Dropped
		snap.RejectedEvents = counters.Rejected
	}

	offenders := make(map[string]*Offender)
	for i := range alerts {
		alert := &alerts[i]
		snap.SeverityCounts[alert.Severity.String()]++
		snap.AttackTypes[alert.ThreatType]++
		if !alert.Timestamp.Before(dayAgo) {
			snap.AlertsLast24h++
		}

		o, ok := offenders[alert.SourceIP]
		if !ok {
			o = &Offender{IP: alert.SourceIP}
			offenders[alert.SourceIP] = o
		}
		o.Count++
		if alert.Timestamp.After(o.LastSeen) {
			o.LastSeen = alert.Timestamp
		}
	}

	snap.TopOffendingIPs = rankOffenders(offenders, topOffenders)

	// The snapshot is in recording order.
	for i := len(alerts) - 1; i >= 0 && len(snap.RecentAlerts) < recentAlerts; i-- {
		snap.RecentAlerts = append(snap.RecentAlerts, alerts[i])
	}
	return snap
}

// rankOffenders orders by alert count, then most recent alert, then IP.
func rankOffenders(offenders map[string]*Offender, limit int) []Offender {
	ranked := make([]Offender, 0, len(offenders))
	for _, o := range offenders {
		ranked = append(ranked, *o)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		if !ranked[i].LastSeen.Equal(ranked[j].LastSeen) {
			return ranked[i].LastSeen.After(ranked[j].LastSeen)
		}
		return ranked[i].IP < ranked[j].IP
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
