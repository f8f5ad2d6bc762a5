package builtin

import (
	"context"
	"fmt"

	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

// PortScanRule fires when a source touches more distinct destination ports
// than the threshold inside the window. With synOnly set it only counts
// bare SYN probes, which catches half-open scans earlier.
type PortScanRule struct {
	baseRule
	threshold int
	synOnly   bool
	strict    bool
	state     *tracker[portSet]
	logger    *logrus.Logger
}

func NewPortScanRule(cfg model.Rule, maxTracked int, logger *logrus.Logger) *PortScanRule {
	def := defaultRule(PortScanRuleName)
	threshold := int(cfg.Threshold("distinct_ports", def.Threshold("distinct_ports", 10)))
	if threshold <= 0 {
		threshold = 10
	}
	return &PortScanRule{
		baseRule:  newBaseRule(cfg, def, model.SeverityMedium),
		threshold: threshold,
		strict:    true,
		state:     newTracker[portSet](maxTracked),
		logger:    logger,
	}
}

func NewSYNScanRule(cfg model.Rule, maxTracked int, logger *logrus.Logger) *PortScanRule {
	def := defaultRule(SYNScanRuleName)
	threshold := int(cfg.Threshold("distinct_ports", def.Threshold("distinct_ports", 5)))
	if threshold <= 0 {
		threshold = 5
	}
	return &PortScanRule{
		baseRule:  newBaseRule(cfg, def, model.SeverityHigh),
		threshold: threshold,
		synOnly:   true,
		state:     newTracker[portSet](maxTracked),
		logger:    logger,
	}
}

func (r *PortScanRule) Evaluate(ctx context.Context, event *model.Event) *model.RuleMatch {
	if !r.enabled || event.DestPort <= 0 {
		return nil
	}
	if r.synOnly && !event.SYNOnly() {
		return nil
	}

	var distinct int
	r.state.with(event.SourceIP, func(ps *portSet) {
		distinct = ps.add(event.DestPort, eventTime(event.Timestamp), r.window)
	})

	// port_scan needs strictly more than the threshold, syn_scan reaching it
	if (r.strict && distinct <= r.threshold) || (!r.strict && distinct < r.threshold) {
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"rule":           r.name,
		"source_ip":      event.SourceIP,
		"distinct_ports": distinct,
	}).Debug("Port scan threshold reached")

	return r.match(fmt.Sprintf("%d distinct ports within %s", distinct, r.window))
}
