package builtin

import (
	"context"
	"fmt"

	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

// DDoSRule fires when a single source exceeds the request volume threshold
// inside the window.
type DDoSRule struct {
	baseRule
	threshold int
	state     *tracker[timeline]
	logger    *logrus.Logger
}

func NewDDoSRule(cfg model.Rule, maxTracked int, logger *logrus.Logger) *DDoSRule {
	def := defaultRule(DDoSRuleName)
	threshold := int(cfg.Threshold("requests", def.Threshold("requests", 50)))
	if threshold <= 0 {
		threshold = 50
	}
	return &DDoSRule{
		baseRule:  newBaseRule(cfg, def, model.SeverityHigh),
		threshold: threshold,
		state:     newTracker[timeline](maxTracked),
		logger:    logger,
	}
}

func (r *DDoSRule) Evaluate(ctx context.Context, event *model.Event) *model.RuleMatch {
	if !r.enabled {
		return nil
	}

	var requests int
	r.state.with(event.SourceIP, func(tl *timeline) {
		// one past the threshold is all that is needed to decide
		requests = tl.add(eventTime(event.Timestamp), r.window, r.threshold+1)
	})

	if requests <= r.threshold {
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"rule":      r.name,
		"source_ip": event.SourceIP,
	}).Debug("Request volume threshold exceeded")

	return r.match(fmt.Sprintf("more than %d requests within %s", r.threshold, r.window))
}
