package stats

import (
	"fmt"
	"testing"
	"time"

	"inidars/internal/intake"
	"inidars/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlerts []model.Alert

func (f fakeAlerts) Snapshot() []model.Alert { return f }

type fakeBlocks int

func (f fakeBlocks) Count() int { return int(f) }

type fakeEvents intake.Counters

func (f fakeEvents) Counters() intake.Counters { return intake.Counters(f) }

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func alertAt(ip string, sev model.Severity, threat string, age time.Duration) model.Alert {
	return model.Alert{
		ID:         fmt.Sprintf("%s-%s", ip, age),
		SourceIP:   ip,
		Severity:   sev,
		ThreatType: threat,
		Timestamp:  now.Add(-age),
	}
}

func newAggregator(alerts fakeAlerts, blocks int, events intake.Counters) *Aggregator {
	a := NewAggregator(alerts, fakeBlocks(blocks), fakeEvents(events))
	a.now = func() time.Time { return now }
	return a
}

func TestSnapshotEmpty(t *testing.T) {
	snap := newAggregator(nil, 0, intake.Counters{}).Snapshot()

	assert.Equal(t, 0, snap.TotalAlerts)
	assert.Equal(t, map[string]int{"LOW": 0, "MEDIUM": 0, "HIGH": 0, "CRITICAL": 0}, snap.SeverityCounts)
	assert.Empty(t, snap.AttackTypes)
	assert.Empty(t, snap.TopOffendingIPs)
	assert.NotNil(t, snap.RecentAlerts)
	assert.Equal(t, now, snap.Timestamp)
}

func TestSnapshotCounts(t *testing.T) {
	// Recording order: oldest first.
	alerts := fakeAlerts{
		alertAt("10.0.0.1", model.SeverityLow, "Anomalous Behavior", 48*time.Hour),
		alertAt("10.0.0.2", model.SeverityHigh, "Port Scan", 3*time.Hour),
		alertAt("10.0.0.1", model.SeverityHigh, "Brute Force Attack", 2*time.Hour),
		alertAt("10.0.0.3", model.SeverityCritical, "Port Scan", time.Hour),
	}
	snap := newAggregator(alerts, 2, intake.Counters{Received: 40, Dropped: 3, Rejected: 5}).Snapshot()

	assert.Equal(t, int64(40), snap.TotalEvents)
	assert.Equal(t, int64(3), snap.DroppedEvents)
	assert.Equal(t, int64(5), snap.RejectedEvents)
	assert.Equal(t, 4, snap.TotalAlerts)
	assert.Equal(t, 2, snap.BlockedIPsCount)
	assert.Equal(t, 3, snap.AlertsLast24h)
	assert.Equal(t, map[string]int{"LOW": 1, "MEDIUM": 0, "HIGH": 2, "CRITICAL": 1}, snap.SeverityCounts)
	assert.Equal(t, map[string]int{"Anomalous Behavior": 1, "Port Scan": 2, "Brute Force Attack": 1}, snap.AttackTypes)

	sum := 0
	for _, n := range snap.SeverityCounts {
		sum += n
	}
	assert.Equal(t, snap.TotalAlerts, sum)

	require.Len(t, snap.RecentAlerts, 4)
	assert.Equal(t, "10.0.0.3", snap.RecentAlerts[0].SourceIP)
}

func TestTopOffendersOrdering(t *testing.T) {
	alerts := fakeAlerts{
		alertAt("10.0.0.9", model.SeverityLow, "x", 5*time.Hour),
		alertAt("10.0.0.9", model.SeverityLow, "x", 4*time.Hour),
		alertAt("10.0.0.4", model.SeverityLow, "x", 3*time.Hour),
		alertAt("10.0.0.5", model.SeverityLow, "x", time.Hour),
		alertAt("10.0.0.6", model.SeverityLow, "x", time.Hour),
	}
	snap := newAggregator(alerts, 0, intake.Counters{}).Snapshot()

	ips := make([]string, 0, len(snap.TopOffendingIPs))
	for _, o := range snap.TopOffendingIPs {
		ips = append(ips, o.IP)
	}
	// Count first, then most recent alert, then IP.
	assert.Equal(t, []string{"10.0.0.9", "10.0.0.5", "10.0.0.6", "10.0.0.4"}, ips)
	assert.Equal(t, 2, snap.TopOffendingIPs[0].Count)
	assert.Equal(t, now.Add(-4*time.Hour), snap.TopOffendingIPs[0].LastSeen)
}

func TestTopOffendersAndRecentAreBounded(t *testing.T) {
	var alerts fakeAlerts
	for i := 0; i < 25; i++ {
		alerts = append(alerts, alertAt(fmt.Sprintf("10.0.1.%d", i), model.SeverityMedium, "x", time.Duration(25-i)*time.Minute))
	}
	snap := newAggregator(alerts, 0, intake.Counters{}).Snapshot()

	assert.Len(t, snap.TopOffendingIPs, 10)
	assert.Len(t, snap.RecentAlerts, 10)
	assert.Equal(t, "10.0.1.24", snap.RecentAlerts[0].SourceIP)
	assert.Equal(t, "10.0.1.24", snap.TopOffendingIPs[0].IP)
}
