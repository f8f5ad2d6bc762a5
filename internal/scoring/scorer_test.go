package scoring

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedModel struct {
	score float64
	err   error
}

func (m fixedModel) Score([]float64) (float64, error) { return m.score, m.err }
func (m fixedModel) Info() model.ModelInfo            { return model.ModelInfo{Type: "fixed"} }

type fixedRules []model.RuleMatch

func (r fixedRules) Evaluate(context.Context, *model.Event) []model.RuleMatch { return r }

var bruteForce = model.RuleMatch{
	Rule:           "brute_force",
	ThreatType:     "Brute Force Attack",
	Description:    "Multiple failed authentication attempts detected from same source",
	Recommendation: "Block source IP and enable rate limiting",
	MinSeverity:    model.SeverityHigh,
	Priority:       10,
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestScorer(t *testing.T, m Model, rules RuleEvaluator) (*Scorer, *metrics.Metrics) {
	t.Helper()
	thresholds, err := NewThresholds(nil, nil)
	require.NoError(t, err)
	met := metrics.NewMetrics(prometheus.NewRegistry())
	return NewScorer(m, rules, thresholds, Options{}, met, testLogger()), met
}

func testEvent() model.Event {
	return model.Event{
		Timestamp: time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC),
		SourceIP:  "10.0.0.5",
		DestIP:    "10.0.0.1",
		DestPort:  22,
		Protocol:  "ssh",
		Action:    "failed_login",
	}
}

func TestSeverityTable(t *testing.T) {
	thresholds, err := NewThresholds(nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		score float64
		rule  bool
		floor model.Severity
		want  model.Severity
	}{
		{"quiet", 0.1, false, 0, model.SeverityLow},
		{"medium alone", 0.7, false, 0, model.SeverityMedium},
		{"high alone", 0.8, false, 0, model.SeverityHigh},
		{"critical alone", 0.9, false, 0, model.SeverityCritical},
		{"rule lifts medium", 0.55, true, model.SeverityLow, model.SeverityMedium},
		{"rule lifts high", 0.7, true, model.SeverityLow, model.SeverityHigh},
		{"rule lifts critical", 0.81, true, model.SeverityLow, model.SeverityCritical},
		{"floor applies", 0.4, true, model.SeverityHigh, model.SeverityHigh},
		{"floor ignored without rule", 0.4, false, model.SeverityHigh, model.SeverityLow},
		{"boundary is exclusive", 0.85, false, 0, model.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, thresholds.Severity(tt.score, tt.rule, tt.floor))
		})
	}
}

func TestSeverityIsMonotonic(t *testing.T) {
	thresholds, err := NewThresholds(nil, nil)
	require.NoError(t, err)

	for _, floor := range append([]model.Severity{0}, model.Severities...) {
		prevWithout, prevWith := model.Severity(0), model.Severity(0)
		for i := 0; i <= 100; i++ {
			score := float64(i) / 100
			without := thresholds.Severity(score, false, floor)
			with := thresholds.Severity(score, true, floor)

			assert.GreaterOrEqual(t, int(with), int(without), "rule match must never lower severity")
			assert.GreaterOrEqual(t, int(without), int(prevWithout))
			assert.GreaterOrEqual(t, int(with), int(prevWith))
			prevWithout, prevWith = without, with
		}
	}
}

func TestConfidenceTable(t *testing.T) {
	thresholds, err := NewThresholds(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 95.0, thresholds.Confidence(0.75, true))
	assert.Equal(t, 85.0, thresholds.Confidence(0.2, true))
	assert.Equal(t, 80.0, thresholds.Confidence(0.9, false))
	assert.Equal(t, 65.0, thresholds.Confidence(0.75, false))
	assert.Equal(t, 50.0, thresholds.Confidence(0.3, false))
}

func TestNewThresholdsRejectsBadTables(t *testing.T) {
	_, err := NewThresholds([]SeverityThreshold{{Severity: "SEVERE", Above: 0.5}}, nil)
	assert.Error(t, err)

	_, err = NewThresholds(nil, []ConfidenceThreshold{{Confidence: 120}})
	assert.Error(t, err)
}

func TestScoreRuleMatchWithLowModelScore(t *testing.T) {
	scorer, _ := newTestScorer(t, fixedModel{score: 0.4}, fixedRules{bruteForce})

	verdict := scorer.Score(context.Background(), testEvent())

	assert.True(t, verdict.IsThreat)
	assert.True(t, verdict.RuleMatched)
	assert.Equal(t, model.SeverityHigh, verdict.Severity)
	assert.Equal(t, "Brute Force Attack", verdict.ThreatType)
	assert.Equal(t, "brute_force", verdict.RuleName)
	assert.Equal(t, 0.4, verdict.MLScore)
	assert.Equal(t, 85.0, verdict.Confidence)
	assert.Equal(t, model.ScoringModeFull, verdict.ScoringMode)
}

func TestScoreModelOnly(t *testing.T) {
	scorer, _ := newTestScorer(t, fixedModel{score: 0.9}, fixedRules{})

	verdict := scorer.Score(context.Background(), testEvent())
	assert.True(t, verdict.IsThreat)
	assert.False(t, verdict.RuleMatched)
	assert.Equal(t, model.SeverityCritical, verdict.Severity)
	assert.Equal(t, "Anomalous Behavior", verdict.ThreatType)
	assert.Equal(t, "ML model detected unusual pattern (score: 0.90)", verdict.Description)

	scorer, _ = newTestScorer(t, fixedModel{score: 0.55}, fixedRules{})
	assert.False(t, scorer.Score(context.Background(), testEvent()).IsThreat)
}

func TestScoreIsDeterministic(t *testing.T) {
	scorer, _ := newTestScorer(t, fixedModel{score: 0.72}, fixedRules{bruteForce})
	first := scorer.Score(context.Background(), testEvent())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, scorer.Score(context.Background(), testEvent()))
	}
}

func TestScoreDegradesWhenModelFails(t *testing.T) {
	scorer, met := newTestScorer(t, fixedModel{err: errors.New("boom")}, fixedRules{bruteForce})

	verdict := scorer.Score(context.Background(), testEvent())
	assert.True(t, verdict.IsThreat)
	assert.False(t, verdict.ModelAvailable)
	assert.Equal(t, model.ScoringModeRulesOnly, verdict.ScoringMode)
	assert.Equal(t, 0.0, verdict.MLScore)
	assert.Equal(t, model.SeverityHigh, verdict.Severity)
	assert.Equal(t, 60.0, verdict.Confidence)
	assert.Equal(t, 1.0, testutil.ToFloat64(met.ModelDegraded))

	scorer, _ = newTestScorer(t, UnavailableModel{}, fixedRules{})
	assert.False(t, scorer.Score(context.Background(), testEvent()).IsThreat)
}

func TestBlockedSourceVerdict(t *testing.T) {
	scorer, _ := newTestScorer(t, fixedModel{score: 0.1}, fixedRules{})
	verdict := scorer.BlockedSourceVerdict(testEvent())

	assert.True(t, verdict.IsThreat)
	assert.Equal(t, model.SeverityCritical, verdict.Severity)
	assert.Equal(t, model.ScoringModeBlockedSource, verdict.ScoringMode)
	assert.Equal(t, "Blocked Source Traffic", verdict.ThreatType)
}
