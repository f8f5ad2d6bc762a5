package builtin

import (
	"context"
	"fmt"
	"strings"

	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

// BruteForceRule fires once a source accumulates enough failed or denied
// authentication actions inside the window.
type BruteForceRule struct {
	baseRule
	threshold int
	tokens    []string
	state     *tracker[timeline]
	logger    *logrus.Logger
}

func NewBruteForceRule(cfg model.Rule, maxTracked int, logger *logrus.Logger) *BruteForceRule {
	def := defaultRule(BruteForceRuleName)
	threshold := int(cfg.Threshold("failures", def.Threshold("failures", 3)))
	if threshold <= 0 {
		threshold = 3
	}
	tokens := lowerAll(cfg.Patterns)
	if len(tokens) == 0 {
		tokens = defaultFailureTokens
	}
	return &BruteForceRule{
		baseRule:  newBaseRule(cfg, def, model.SeverityHigh),
		threshold: threshold,
		tokens:    tokens,
		state:     newTracker[timeline](maxTracked),
		logger:    logger,
	}
}

func (r *BruteForceRule) Evaluate(ctx context.Context, event *model.Event) *model.RuleMatch {
	if !r.enabled || !containsAny(strings.ToLower(event.Action), r.tokens) {
		return nil
	}

	var failures int
	r.state.with(event.SourceIP, func(tl *timeline) {
		failures = tl.add(eventTime(event.Timestamp), r.window, r.threshold)
	})

	if failures < r.threshold {
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"rule":      r.name,
		"source_ip": event.SourceIP,
		"failures":  failures,
	}).Debug("Brute force threshold reached")

	return r.match(fmt.Sprintf("%d failed attempts within %s", failures, r.window))
}
