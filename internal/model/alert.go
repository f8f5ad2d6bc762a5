package model

import "time"

// ScoringMode records which signals produced a verdict.
type ScoringMode string

const (
	ScoringModeFull          ScoringMode = "ml+rules"
	ScoringModeRulesOnly     ScoringMode = "rules-only"
	ScoringModeBlockedSource ScoringMode = "blocked-source"
)

// RuleMatch is the outcome of one deterministic rule firing on an event.
type RuleMatch struct {
	Rule           string   `json:"rule"`
	ThreatType     string   `json:"threat_type"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	MinSeverity    Severity `json:"min_severity"`
	Priority       int      `json:"priority"`
	Evidence       string   `json:"evidence,omitempty"`
}

// Verdict is the scoring result for a single event.
type Verdict struct {
	IsThreat       bool        `json:"is_threat"`
	MLScore        float64     `json:"ml_score"`
	Confidence     float64     `json:"confidence"`
	RuleMatched    bool        `json:"rule_matched"`
	RuleName       string      `json:"rule_name,omitempty"`
	MatchedRules   []string    `json:"matched_rules,omitempty"`
	ThreatType     string      `json:"threat_type"`
	Description    string      `json:"description"`
	Recommendation string      `json:"recommendation"`
	Severity       Severity    `json:"severity"`
	ScoringMode    ScoringMode `json:"scoring_mode"`
	ModelAvailable bool        `json:"model_available"`
}

// Alert is a persisted verdict. Alerts are immutable once recorded.
type Alert struct {
	ID             string      `json:"id"`
	Timestamp      time.Time   `json:"timestamp"`
	EventTimestamp time.Time   `json:"event_timestamp"`
	Severity       Severity    `json:"severity"`
	ThreatType     string      `json:"threat_type"`
	Description    string      `json:"description"`
	Recommendation string      `json:"recommendation"`
	SourceIP       string      `json:"source_ip"`
	DestIP         string      `json:"dest_ip"`
	DestPort       int         `json:"dest_port"`
	Protocol       string      `json:"protocol"`
	MLScore        float64     `json:"ml_score"`
	Confidence     float64     `json:"confidence"`
	RuleMatched    bool        `json:"rule_matched"`
	RuleName       string      `json:"rule_name,omitempty"`
	MatchedRules   []string    `json:"matched_rules,omitempty"`
	ScoringMode    ScoringMode `json:"scoring_mode"`
	ModelAvailable bool        `json:"model_available"`
}

// NewAlert builds an alert from a verdict and the event it was computed for.
// The caller assigns ID and Timestamp.
func NewAlert(verdict Verdict, event Event) Alert {
	return Alert{
		EventTimestamp: event.Timestamp,
		Severity:       verdict.Severity,
		ThreatType:     verdict.ThreatType,
		Description:    verdict.Description,
		Recommendation: verdict.Recommendation,
		SourceIP:       event.SourceIP,
		DestIP:         event.DestIP,
		DestPort:       event.DestPort,
		Protocol:       event.Protocol,
		MLScore:        verdict.MLScore,
		Confidence:     verdict.Confidence,
		RuleMatched:    verdict.RuleMatched,
		RuleName:       verdict.RuleName,
		MatchedRules:   verdict.MatchedRules,
		ScoringMode:    verdict.ScoringMode,
		ModelAvailable: verdict.ModelAvailable,
	}
}
