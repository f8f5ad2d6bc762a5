package rules

import (
	"context"
	"sort"
	"sync"

	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

type Engine struct {
	rules  []RuleInterface
	logger *logrus.Logger
	mu     sync.RWMutex
}

func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		rules:  make([]RuleInterface, 0),
		logger: logger,
	}
}

// RegisterRule adds a rule, keeping the set ordered by priority. Rules with
// equal priority keep their registration order.
func (e *Engine) RegisterRule(rule RuleInterface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority() < e.rules[j].Priority()
	})
	e.logger.Infof("Registered rule: %s (priority %d, enabled %v)", rule.Name(), rule.Priority(), rule.IsEnabled())
}

// Evaluate runs every enabled rule and returns the matches highest priority
// first. All rules see the event so their windows stay current.
func (e *Engine) Evaluate(ctx context.Context, event *model.Event) []model.RuleMatch {
	e.mu.RLock()
	rules := make([]RuleInterface, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	var matches []model.RuleMatch

	for _, rule := range rules {
		if rule.IsEnabled() {
			if match := rule.Evaluate(ctx, event); match != nil {
				matches = append(matches, *match)
			}
		}
	}

	return matches
}

// Rules describes the registered rules in evaluation order.
func (e *Engine) Rules() []RuleInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]RuleInfo, 0, len(e.rules))
	for _, rule := range e.rules {
		infos = append(infos, RuleInfo{
			Name:     rule.Name(),
			Enabled:  rule.IsEnabled(),
			Priority: rule.Priority(),
		})
	}
	return infos
}

type RuleInfo struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}

type RuleInterface interface {
	Name() string
	IsEnabled() bool
	Priority() int
	Evaluate(ctx context.Context, event *model.Event) *model.RuleMatch
}
