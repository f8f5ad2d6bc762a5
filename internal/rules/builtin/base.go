package builtin

import (
	"time"

	"inidars/internal/model"
)

// baseRule carries the configuration every builtin rule shares.
type baseRule struct {
	name           string
	enabled        bool
	priority       int
	minSeverity    model.Severity
	threatType     string
	description    string
	recommendation string
	window         time.Duration
}

func newBaseRule(cfg model.Rule, def model.Rule, defSeverity model.Severity) baseRule {
	b := baseRule{
		name:           cfg.Name,
		enabled:        cfg.Enabled,
		priority:       cfg.Priority,
		minSeverity:    cfg.MinSeverity(defSeverity),
		threatType:     cfg.ThreatType,
		description:    cfg.Description,
		recommendation: cfg.Recommendation,
		window:         cfg.Window,
	}
	if b.name == "" {
		b.name = def.Name
	}
	if b.priority == 0 {
		b.priority = def.Priority
	}
	if b.threatType == "" {
		b.threatType = def.ThreatType
	}
	if b.description == "" {
		b.description = def.Description
	}
	if b.recommendation == "" {
		b.recommendation = def.Recommendation
	}
	if b.window <= 0 {
		b.window = def.Window
	}
	return b
}

func (b *baseRule) Name() string {
	return b.name
}

func (b *baseRule) IsEnabled() bool {
	return b.enabled
}

func (b *baseRule) Priority() int {
	return b.priority
}

func (b *baseRule) match(evidence string) *model.RuleMatch {
	return &model.RuleMatch{
		Rule:           b.name,
		ThreatType:     b.threatType,
		Description:    b.description,
		Recommendation: b.recommendation,
		MinSeverity:    b.minSeverity,
		Priority:       b.priority,
		Evidence:       evidence,
	}
}
