package builtin

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"inidars/internal/model"
	"inidars/internal/rules"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func event(src string, port int, action string, offset time.Duration) *model.Event {
	return &model.Event{
		Timestamp: t0.Add(offset),
		SourceIP:  src,
		DestIP:    "10.0.0.1",
		DestPort:  port,
		Protocol:  "tcp",
		Action:    action,
	}
}

func TestBruteForceRule(t *testing.T) {
	rule := NewBruteForceRule(defaultRule(BruteForceRuleName), 0, testLogger())
	ctx := context.Background()

	assert.Nil(t, rule.Evaluate(ctx, event("192.168.1.100", 22, "failed_login", 0)))
	assert.Nil(t, rule.Evaluate(ctx, event("192.168.1.100", 22, "login_success", time.Second)))
	assert.Nil(t, rule.Evaluate(ctx, event("192.168.1.100", 22, "access_denied", 2*time.Second)))
	assert.Nil(t, rule.Evaluate(ctx, event("192.168.1.200", 22, "failed_login", 3*time.Second)), "other source")

	match := rule.Evaluate(ctx, event("192.168.1.100", 22, "FAILED_LOGIN", 4*time.Second))
	require.NotNil(t, match)
	assert.Equal(t, "Brute Force Attack", match.ThreatType)
	assert.Equal(t, model.SeverityHigh, match.MinSeverity)
	assert.Equal(t, 10, match.Priority)
}

func TestBruteForceRuleWindowExpires(t *testing.T) {
	rule := NewBruteForceRule(defaultRule(BruteForceRuleName), 0, testLogger())
	ctx := context.Background()

	rule.Evaluate(ctx, event("10.0.0.5", 22, "failed", 0))
	rule.Evaluate(ctx, event("10.0.0.5", 22, "failed", time.Minute))
	assert.Nil(t, rule.Evaluate(ctx, event("10.0.0.5", 22, "failed", 10*time.Minute)))
}

func TestPortScanRule(t *testing.T) {
	rule := NewPortScanRule(defaultRule(PortScanRuleName), 0, testLogger())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.Nil(t, rule.Evaluate(ctx, event("203.0.113.45", 20+i, "probe", time.Duration(i)*time.Second)))
	}
	assert.Nil(t, rule.Evaluate(ctx, event("203.0.113.45", 20, "probe", 11*time.Second)), "repeated port")

	match := rule.Evaluate(ctx, event("203.0.113.45", 30, "probe", 12*time.Second))
	require.NotNil(t, match)
	assert.Equal(t, "Port Scan", match.ThreatType)
	assert.Contains(t, match.Evidence, "11 distinct ports")
}

func TestSYNScanRule(t *testing.T) {
	rule := NewSYNScanRule(defaultRule(SYNScanRuleName), 0, testLogger())
	ctx := context.Background()

	synEvent := func(port int, flags string) *model.Event {
		e := event("198.51.100.7", port, "", time.Duration(port)*time.Millisecond)
		e.TCPFlags = flags
		return e
	}

	assert.Nil(t, rule.Evaluate(ctx, synEvent(1, "SYN,ACK")))
	for port := 2; port <= 5; port++ {
		assert.Nil(t, rule.Evaluate(ctx, synEvent(port, "SYN")))
	}
	match := rule.Evaluate(ctx, synEvent(6, "SYN"))
	require.NotNil(t, match)
	assert.Equal(t, "SYN Scan", match.ThreatType)
}

func TestDDoSRule(t *testing.T) {
	rule := NewDDoSRule(defaultRule(DDoSRuleName), 0, testLogger())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.Nil(t, rule.Evaluate(ctx, event("172.16.0.9", 80, "allow", time.Duration(i)*time.Millisecond)))
	}
	assert.NotNil(t, rule.Evaluate(ctx, event("172.16.0.9", 80, "allow", 51*time.Millisecond)))
}

func TestSignatureRules(t *testing.T) {
	sqli := NewSQLInjectionRule(defaultRule(SQLInjectionRuleName), testLogger())
	malware := NewMalwareRule(defaultRule(MalwareRuleName), testLogger())
	ctx := context.Background()

	e := event("10.0.0.8", 443, "allow", 0)
	e.Payload = "GET /items?id=1 UNION SELECT password FROM users"
	match := sqli.Evaluate(ctx, e)
	require.NotNil(t, match)
	assert.Equal(t, "SQL Injection Attempt", match.ThreatType)
	assert.Nil(t, malware.Evaluate(ctx, e))

	e = event("10.0.0.8", 443, "allow", 0)
	e.Raw = map[string]any{"process": "Suspicious.exe"}
	match = malware.Evaluate(ctx, e)
	require.NotNil(t, match)
	assert.Equal(t, "Malware Activity", match.ThreatType)

	assert.Nil(t, sqli.Evaluate(ctx, event("10.0.0.8", 443, "allow", 0)))
}

func TestSignatureRulesIgnoreFieldNames(t *testing.T) {
	sqli := NewSQLInjectionRule(defaultRule(SQLInjectionRuleName), testLogger())
	malware := NewMalwareRule(defaultRule(MalwareRuleName), testLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"key ending in 1 with value 1", map[string]any{"vlan1": 100}},
		{"key spelled like a signature", map[string]any{"union select": "ok", "drop table": "no"}},
		{"values joined across fields", map[string]any{"a": "union", "b": "select"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := event("10.0.0.8", 443, "allow", 0)
			e.Raw = tt.raw
			assert.Nil(t, sqli.Evaluate(ctx, e))
			assert.Nil(t, malware.Evaluate(ctx, e))
		})
	}
}

func TestRulesRespectEnabled(t *testing.T) {
	cfg := defaultRule(SQLInjectionRuleName)
	cfg.Enabled = false
	rule := NewSQLInjectionRule(cfg, testLogger())

	e := event("10.0.0.8", 443, "allow", 0)
	e.Payload = "drop table users"
	assert.Nil(t, rule.Evaluate(context.Background(), e))
}

func TestTrackerIsBounded(t *testing.T) {
	rule := NewDDoSRule(defaultRule(DDoSRuleName), 16, testLogger())
	for i := 0; i < 100; i++ {
		rule.Evaluate(context.Background(), event(fmt.Sprintf("10.9.0.%d", i), 80, "allow", 0))
	}
	assert.Equal(t, 16, rule.state.len())
}

func TestRegisterBuiltinRulesOrdersByPriority(t *testing.T) {
	engine := rules.NewEngine(testLogger())

	overrides := []model.Rule{
		{Name: DDoSRuleName, Enabled: true, Priority: 5},
		{Name: "unknown_rule", Enabled: true},
	}
	n := RegisterBuiltinRules(engine, overrides, 0, testLogger())
	assert.Equal(t, 6, n)

	infos := engine.Rules()
	require.Len(t, infos, 6)
	assert.Equal(t, DDoSRuleName, infos[0].Name)
	assert.Equal(t, BruteForceRuleName, infos[1].Name)
	assert.Equal(t, MalwareRuleName, infos[5].Name)
}

func TestEngineReturnsMatchesInPriorityOrder(t *testing.T) {
	engine := rules.NewEngine(testLogger())
	RegisterBuiltinRules(engine, nil, 0, testLogger())
	ctx := context.Background()

	var matches []model.RuleMatch
	for i := 0; i < 3; i++ {
		e := event("192.168.1.100", 3306, "auth_failed", time.Duration(i)*time.Second)
		e.Payload = "' OR 1=1 --"
		matches = engine.Evaluate(ctx, e)
	}

	require.Len(t, matches, 2)
	assert.Equal(t, BruteForceRuleName, matches[0].Rule)
	assert.Equal(t, SQLInjectionRuleName, matches[1].Rule)
}
