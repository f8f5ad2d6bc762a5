package builtin

import (
	"inidars/internal/model"
	"inidars/internal/rules"

	"github.com/sirupsen/logrus"
)

// RegisterBuiltinRules registers the configured rules on engine. Rules not
// present in cfgs keep their defaults; unknown names are logged and skipped.
func RegisterBuiltinRules(engine *rules.Engine, cfgs []model.Rule, maxTracked int, logger *logrus.Logger) int {
	registered := 0

	for _, cfg := range rules.Merge(DefaultRules(), cfgs) {
		var rule rules.RuleInterface

		switch cfg.Name {
		case BruteForceRuleName:
			rule = NewBruteForceRule(cfg, maxTracked, logger)
		case PortScanRuleName:
			rule = NewPortScanRule(cfg, maxTracked, logger)
		case SYNScanRuleName:
			rule = NewSYNScanRule(cfg, maxTracked, logger)
		case SQLInjectionRuleName:
			rule = NewSQLInjectionRule(cfg, logger)
		case DDoSRuleName:
			rule = NewDDoSRule(cfg, maxTracked, logger)
		case MalwareRuleName:
			rule = NewMalwareRule(cfg, logger)
		default:
			logger.Warnf("Unknown rule %q in configuration, skipping", cfg.Name)
			continue
		}

		engine.RegisterRule(rule)
		registered++
	}

	return registered
}
