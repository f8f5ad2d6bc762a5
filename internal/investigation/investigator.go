// Package investigation assembles everything known about one source IP.
package investigation

import (
	"sort"
	"time"

	"inidars/internal/audit"
	"inidars/internal/model"
	"inidars/internal/storage"
)

type AlertSource interface {
	List(filter storage.AlertFilter) []model.Alert
}

type BlockSource interface {
	Get(ip string) (model.BlockedIP, error)
}

type ActionSource interface {
	List(filter audit.Filter, limit int) []model.Action
}

type Statistics struct {
	TotalAlerts       int              `json:"total_alerts"`
	SeverityBreakdown map[string]int   `json:"severity_breakdown"`
	ThreatTypes       []string         `json:"threat_types"`
	FirstSeen         *time.Time       `json:"first_seen"`
	LastSeen          *time.Time       `json:"last_seen"`
	IsBlocked         bool             `json:"is_blocked"`
	Block             *model.BlockedIP `json:"block,omitempty"`
}

type Result struct {
	IP         string         `json:"ip"`
	Statistics Statistics     `json:"statistics"`
	Alerts     []model.Alert  `json:"alerts"`
	Actions    []model.Action `json:"actions"`
}

type Investigator struct {
	alerts  AlertSource
	blocks  BlockSource
	actions ActionSource
}

func NewInvestigator(alerts AlertSource, blocks BlockSource, actions ActionSource) *Investigator {
	return &Investigator{alerts: alerts, blocks: blocks, actions: actions}
}

// Investigate returns the alert history, block state and action history of
// ip. An IP with no history yields an empty result rather than an error.
func (i *Investigator) Investigate(ip string) (Result, error) {
	canonical, err := model.CanonicalIP(ip)
	if err != nil {
		return Result{}, err
	}

	alerts := i.alerts.List(storage.AlertFilter{SourceIP: canonical})
	result := Result{
		IP:      canonical,
		Alerts:  alerts,
		Actions: i.actions.List(audit.Filter{Target: canonical}, 0),
		Statistics: Statistics{
			TotalAlerts:       len(alerts),
			SeverityBreakdown: model.SeverityCounts(),
			ThreatTypes:       make([]string, 0),
		},
	}

	seen := make(map[string]bool)
	for idx := range alerts {
		a := &alerts[idx]
		result.Statistics.SeverityBreakdown[a.Severity.String()]++
		if !seen[a.ThreatType] {
			seen[a.ThreatType] = true
			result.Statistics.ThreatTypes = append(result.Statistics.ThreatTypes, a.ThreatType)
		}
	}
	sort.Strings(result.Statistics.ThreatTypes)

	// Alerts are newest first.
	if len(alerts) > 0 {
		last := alerts[0].Timestamp
		first := alerts[len(alerts)-1].Timestamp
		result.Statistics.LastSeen = &last
		result.Statistics.FirstSeen = &first
	}

	if block, err := i.blocks.Get(canonical); err == nil {
		result.Statistics.IsBlocked = true
		result.Statistics.Block = &block
	}

	return result, nil
}
