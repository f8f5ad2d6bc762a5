package scoring

import (
	"context"
	"fmt"
	"time"

	"inidars/internal/features"
	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	anomalyThreatType     = "Anomalous Behavior"
	anomalyRecommendation = "Investigate source IP and recent activity"

	blockedRuleName       = "blocked_source"
	blockedThreatType     = "Blocked Source Traffic"
	blockedRecommendation = "Verify the block is enforced at the network edge"
)

// RuleEvaluator runs the deterministic rules against an event and returns
// the matches in priority order.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, event *model.Event) []model.RuleMatch
}

type Options struct {
	// AlertThreshold is the ML score above which an event is a threat even
	// without a rule match.
	AlertThreshold float64
	// DegradedConfidenceCap bounds confidence when the model was unavailable.
	DegradedConfidenceCap float64
}

// Scorer combines the anomaly model with the rule engine into a verdict.
type Scorer struct {
	model      Model
	rules      RuleEvaluator
	extractor  *features.Extractor
	thresholds *Thresholds
	opts       Options
	metrics    *metrics.Metrics
	logger     *logrus.Logger
}

func NewScorer(m Model, rules RuleEvaluator, thresholds *Thresholds, opts Options, met *metrics.Metrics, logger *logrus.Logger) *Scorer {
	if opts.AlertThreshold <= 0 {
		opts.AlertThreshold = 0.6
	}
	if opts.DegradedConfidenceCap <= 0 {
		opts.DegradedConfidenceCap = 60
	}
	if m == nil {
		m = UnavailableModel{Reason: "no model configured"}
	}
	return &Scorer{
		model:      m,
		rules:      rules,
		extractor:  features.NewExtractor(),
		thresholds: thresholds,
		opts:       opts,
		metrics:    met,
		logger:     logger,
	}
}

func (s *Scorer) ModelInfo() model.ModelInfo {
	return s.model.Info()
}

// Score evaluates one event. It never fails: when the model cannot score,
// the verdict is computed from the rules alone and marked as such.
func (s *Scorer) Score(ctx context.Context, event model.Event) model.Verdict {
	start := time.Now()
	defer func() {
		s.metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	}()

	vec := s.extractor.Extract(&event)
	matches := s.rules.Evaluate(ctx, &event)

	mlScore, err := s.model.Score(vec)
	available := err == nil
	if !available {
		mlScore = 0
		s.metrics.ModelDegraded.Inc()
		s.logger.WithFields(logrus.Fields{
			"source_ip": event.SourceIP,
			"error":     err,
		}).Debug("Model unavailable, scoring with rules only")
	}

	verdict := model.Verdict{
		MLScore:        mlScore,
		ModelAvailable: available,
		ScoringMode:    model.ScoringModeFull,
	}
	if !available {
		verdict.ScoringMode = model.ScoringModeRulesOnly
	}

	var floor model.Severity
	if len(matches) > 0 {
		top := matches[0]
		verdict.RuleMatched = true
		verdict.RuleName = top.Rule
		verdict.ThreatType = top.ThreatType
		verdict.Description = top.Description
		verdict.Recommendation = top.Recommendation
		for _, m := range matches {
			verdict.MatchedRules = append(verdict.MatchedRules, m.Rule)
			floor = floor.Max(m.MinSeverity)
			s.metrics.RuleMatches.WithLabelValues(m.Rule).Inc()
		}
	} else {
		verdict.ThreatType = anomalyThreatType
		verdict.Description = fmt.Sprintf("ML model detected unusual pattern (score: %.2f)", mlScore)
		verdict.Recommendation = anomalyRecommendation
	}

	verdict.IsThreat = verdict.RuleMatched || (available && mlScore > s.opts.AlertThreshold)
	verdict.Severity = s.thresholds.Severity(mlScore, verdict.RuleMatched, floor)
	verdict.Confidence = s.thresholds.Confidence(mlScore, verdict.RuleMatched)
	if !available && verdict.Confidence > s.opts.DegradedConfidenceCap {
		verdict.Confidence = s.opts.DegradedConfidenceCap
	}

	return verdict
}

// BlockedSourceVerdict is the verdict for traffic from a blocked source. The
// event's features are not evaluated.
func (s *Scorer) BlockedSourceVerdict(event model.Event) model.Verdict {
	return model.Verdict{
		IsThreat:       true,
		Confidence:     100,
		RuleMatched:    true,
		RuleName:       blockedRuleName,
		MatchedRules:   []string{blockedRuleName},
		ThreatType:     blockedThreatType,
		Description:    fmt.Sprintf("Traffic received from blocked source %s", event.SourceIP),
		Recommendation: blockedRecommendation,
		Severity:       s.thresholds.Severity(0, true, model.SeverityCritical),
		ScoringMode:    model.ScoringModeBlockedSource,
	}
}
