package scoring

import (
	"fmt"

	"inidars/internal/model"
)

// SeverityThreshold is one row of the severity table: the row is satisfied
// when the ML score is strictly above Above and, if RequiresRule is set, a
// rule matched.
type SeverityThreshold struct {
	Severity     string  `yaml:"severity" json:"severity"`
	Above        float64 `yaml:"above" json:"above"`
	RequiresRule bool    `yaml:"requires_rule" json:"requires_rule"`
}

// ConfidenceThreshold is one row of the confidence table. Rows are checked in
// order and the first satisfied row wins.
type ConfidenceThreshold struct {
	Confidence   float64 `yaml:"confidence" json:"confidence"`
	Above        float64 `yaml:"above" json:"above"`
	RequiresRule bool    `yaml:"requires_rule" json:"requires_rule"`
}

// DefaultSeverityTable puts a rule match plus a moderate score, or a very
// high score alone, at CRITICAL.
func DefaultSeverityTable() []SeverityThreshold {
	return []SeverityThreshold{
		{Severity: "CRITICAL", Above: 0.8, RequiresRule: true},
		{Severity: "CRITICAL", Above: 0.85},
		{Severity: "HIGH", Above: 0.65, RequiresRule: true},
		{Severity: "HIGH", Above: 0.75},
		{Severity: "MEDIUM", Above: 0.5, RequiresRule: true},
		{Severity: "MEDIUM", Above: 0.65},
	}
}

func DefaultConfidenceTable() []ConfidenceThreshold {
	return []ConfidenceThreshold{
		{Confidence: 95, Above: 0.7, RequiresRule: true},
		{Confidence: 85, Above: -1, RequiresRule: true},
		{Confidence: 80, Above: 0.85},
		{Confidence: 65, Above: 0.7},
	}
}

type severityRow struct {
	severity     model.Severity
	above        float64
	requiresRule bool
}

// Thresholds fuses an ML score and rule outcome into severity and
// confidence. It is a pure function of its inputs.
type Thresholds struct {
	severity          []severityRow
	confidence        []ConfidenceThreshold
	fallback          model.Severity
	defaultConfidence float64
}

// NewThresholds validates the configured tables. Empty tables fall back to
// the defaults.
func NewThresholds(severity []SeverityThreshold, confidence []ConfidenceThreshold) (*Thresholds, error) {
	if len(severity) == 0 {
		severity = DefaultSeverityTable()
	}
	if len(confidence) == 0 {
		confidence = DefaultConfidenceTable()
	}

	t := &Thresholds{
		confidence:        confidence,
		fallback:          model.SeverityLow,
		defaultConfidence: 50,
	}

	for i, row := range severity {
		s, err := model.ParseSeverity(row.Severity)
		if err != nil {
			return nil, fmt.Errorf("severity table row %d: %v", i, err)
		}
		t.severity = append(t.severity, severityRow{severity: s, above: row.Above, requiresRule: row.RequiresRule})
	}

	for i, row := range confidence {
		if row.Confidence < 0 || row.Confidence > 100 {
			return nil, fmt.Errorf("confidence table row %d: confidence %.1f outside [0,100]", i, row.Confidence)
		}
	}

	return t, nil
}

// Severity returns the highest severity whose row is satisfied, raised to
// floor when a rule matched. A matched rule can only ever raise the result.
func (t *Thresholds) Severity(mlScore float64, ruleMatched bool, floor model.Severity) model.Severity {
	result := t.fallback
	for _, row := range t.severity {
		if row.requiresRule && !ruleMatched {
			continue
		}
		if mlScore > row.above {
			result = result.Max(row.severity)
		}
	}
	if ruleMatched && floor.Valid() {
		result = result.Max(floor)
	}
	return result
}

func (t *Thresholds) Confidence(mlScore float64, ruleMatched bool) float64 {
	for _, row := range t.confidence {
		if row.RequiresRule && !ruleMatched {
			continue
		}
		if mlScore > row.Above {
			return row.Confidence
		}
	}
	return t.defaultConfidence
}
