package builtin

import (
	"context"
	"fmt"
	"strings"

	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

// SignatureRule fires when the event payload or any raw field value contains
// one of its patterns. Matching is case-insensitive. Used for SQL injection and
// malware indicators.
type SignatureRule struct {
	baseRule
	patterns []string
	logger   *logrus.Logger
}

func NewSQLInjectionRule(cfg model.Rule, logger *logrus.Logger) *SignatureRule {
	return newSignatureRule(cfg, SQLInjectionRuleName, defaultSQLInjectionPatterns, logger)
}

func NewMalwareRule(cfg model.Rule, logger *logrus.Logger) *SignatureRule {
	return newSignatureRule(cfg, MalwareRuleName, defaultMalwarePatterns, logger)
}

func newSignatureRule(cfg model.Rule, name string, defaults []string, logger *logrus.Logger) *SignatureRule {
	patterns := lowerAll(cfg.Patterns)
	if len(patterns) == 0 {
		patterns = defaults
	}
	return &SignatureRule{
		baseRule: newBaseRule(cfg, defaultRule(name), model.SeverityHigh),
		patterns: patterns,
		logger:   logger,
	}
}

func (r *SignatureRule) Evaluate(ctx context.Context, event *model.Event) *model.RuleMatch {
	if !r.enabled {
		return nil
	}

	for _, field := range event.SearchFields() {
		for _, p := range r.patterns {
			if strings.Contains(field, p) {
				r.logger.WithFields(logrus.Fields{
					"rule":      r.name,
					"source_ip": event.SourceIP,
					"pattern":   p,
				}).Debug("Signature matched")
				return r.match(fmt.Sprintf("matched signature %q", p))
			}
		}
	}
	return nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
