package investigation

import (
	"io"
	"testing"

	"inidars/internal/audit"
	"inidars/internal/metrics"
	"inidars/internal/model"
	"inidars/internal/reputation"
	"inidars/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	alerts *storage.AlertStore
	blocks *reputation.Manager
	inv    *Investigator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	met := metrics.NewMetrics(prometheus.NewRegistry())
	log := audit.NewLog(met, logger)
	alerts := storage.NewAlertStore(0, log, met, logger)
	blocks := reputation.NewManager(alerts, log, met, logger)
	return fixture{
		alerts: alerts,
		blocks: blocks,
		inv:    NewInvestigator(alerts, blocks, log),
	}
}

func record(f fixture, ip string, sev model.Severity, threat string) model.Alert {
	return f.alerts.Record(
		model.Verdict{IsThreat: true, Severity: sev, ThreatType: threat},
		model.Event{SourceIP: ip, DestIP: "10.0.0.1", Protocol: "tcp"},
	)
}

func TestInvestigateUnknownIP(t *testing.T) {
	f := newFixture(t)

	result, err := f.inv.Investigate("203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", result.IP)
	assert.Equal(t, 0, result.Statistics.TotalAlerts)
	assert.Equal(t, map[string]int{"LOW": 0, "MEDIUM": 0, "HIGH": 0, "CRITICAL": 0}, result.Statistics.SeverityBreakdown)
	assert.Empty(t, result.Statistics.ThreatTypes)
	assert.Nil(t, result.Statistics.FirstSeen)
	assert.Nil(t, result.Statistics.LastSeen)
	assert.False(t, result.Statistics.IsBlocked)
	assert.Empty(t, result.Alerts)
	assert.Empty(t, result.Actions)
}

func TestInvestigateRejectsMalformedIP(t *testing.T) {
	f := newFixture(t)
	_, err := f.inv.Investigate("300.1.1.1")
	assert.True(t, model.IsValidation(err))
}

func TestInvestigateAggregatesHistory(t *testing.T) {
	f := newFixture(t)

	first := record(f, "10.0.0.5", model.SeverityHigh, "Port Scan")
	record(f, "10.0.0.6", model.SeverityLow, "Anomalous Behavior")
	record(f, "10.0.0.5", model.SeverityHigh, "Brute Force Attack")
	last := record(f, "10.0.0.5", model.SeverityCritical, "Port Scan")

	result, err := f.inv.Investigate("10.0.0.5")
	require.NoError(t, err)

	stats := result.Statistics
	assert.Equal(t, 3, stats.TotalAlerts)
	assert.Equal(t, 2, stats.SeverityBreakdown["HIGH"])
	assert.Equal(t, 1, stats.SeverityBreakdown["CRITICAL"])
	assert.Equal(t, 0, stats.SeverityBreakdown["LOW"])
	assert.Equal(t, []string{"Brute Force Attack", "Port Scan"}, stats.ThreatTypes)
	require.NotNil(t, stats.FirstSeen)
	require.NotNil(t, stats.LastSeen)
	assert.Equal(t, first.Timestamp, *stats.FirstSeen)
	assert.Equal(t, last.Timestamp, *stats.LastSeen)

	require.Len(t, result.Alerts, 3)
	assert.Equal(t, last.ID, result.Alerts[0].ID)
}

func TestBlockThenInvestigate(t *testing.T) {
	f := newFixture(t)
	record(f, "10.0.0.5", model.SeverityHigh, "Brute Force Attack")

	_, _, err := f.blocks.Block("10.0.0.5", "brute force", "24h", model.ActorOperator)
	require.NoError(t, err)

	result, err := f.inv.Investigate("10.0.0.5")
	require.NoError(t, err)
	assert.True(t, result.Statistics.IsBlocked)
	require.NotNil(t, result.Statistics.Block)
	assert.Equal(t, "brute force", result.Statistics.Block.Reason)
	assert.Equal(t, 1, result.Statistics.Block.AlertCount)

	require.Len(t, result.Actions, 1)
	assert.Equal(t, model.ActionBlock, result.Actions[0].Kind)
	assert.Equal(t, "10.0.0.5", result.Actions[0].Target)

	require.NoError(t, f.blocks.Unblock("10.0.0.5", model.ActorOperator))
	result, err = f.inv.Investigate("10.0.0.5")
	require.NoError(t, err)
	assert.False(t, result.Statistics.IsBlocked)
	assert.Nil(t, result.Statistics.Block)
	require.Len(t, result.Actions, 2)
	assert.Equal(t, model.ActionUnblock, result.Actions[0].Kind)
}
