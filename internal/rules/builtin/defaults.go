package builtin

import (
	"time"

	"inidars/internal/model"
)

const (
	BruteForceRuleName   = "brute_force"
	PortScanRuleName     = "port_scan"
	SYNScanRuleName      = "syn_scan"
	SQLInjectionRuleName = "sql_injection"
	DDoSRuleName         = "ddos"
	MalwareRuleName      = "malware"
)

var (
	defaultFailureTokens = []string{"fail", "denied"}

	defaultSQLInjectionPatterns = []string{
		"union select", "drop table", "insert into", "delete from",
		"1=1", "or 1=1", "--", "exec(", "execute(",
	}

	defaultMalwarePatterns = []string{
		"malware", "trojan", "ransomware", "backdoor",
		"suspicious.exe", "cryptominer", "botnet",
	}
)

// DefaultRules is the builtin rule set in priority order.
func DefaultRules() []model.Rule {
	return []model.Rule{
		{
			Name:           BruteForceRuleName,
			Enabled:        true,
			Priority:       10,
			Severity:       "HIGH",
			ThreatType:     "Brute Force Attack",
			Description:    "Multiple failed authentication attempts detected from same source",
			Recommendation: "Block source IP and enable rate limiting",
			Window:         5 * time.Minute,
			Thresholds:     map[string]interface{}{"failures": 3},
			Patterns:       defaultFailureTokens,
		},
		{
			Name:           PortScanRuleName,
			Enabled:        true,
			Priority:       20,
			Severity:       "MEDIUM",
			ThreatType:     "Port Scan",
			Description:    "Systematic scanning of multiple ports detected",
			Recommendation: "Block source IP and investigate scanning pattern",
			Window:         time.Minute,
			Thresholds:     map[string]interface{}{"distinct_ports": 10},
		},
		{
			Name:           SYNScanRuleName,
			Enabled:        true,
			Priority:       25,
			Severity:       "HIGH",
			ThreatType:     "SYN Scan",
			Description:    "Half-open TCP connection probes across multiple ports detected",
			Recommendation: "Block source IP and enable SYN flood protection",
			Window:         10 * time.Second,
			Thresholds:     map[string]interface{}{"distinct_ports": 5},
		},
		{
			Name:           SQLInjectionRuleName,
			Enabled:        true,
			Priority:       30,
			Severity:       "HIGH",
			ThreatType:     "SQL Injection Attempt",
			Description:    "Malicious SQL patterns detected in request",
			Recommendation: "Block request and audit application for SQL injection vulnerabilities",
			Patterns:       defaultSQLInjectionPatterns,
		},
		{
			Name:           DDoSRuleName,
			Enabled:        true,
			Priority:       40,
			Severity:       "HIGH",
			ThreatType:     "DDoS Attack",
			Description:    "Abnormally high request volume from source",
			Recommendation: "Enable DDoS mitigation and rate limiting",
			Window:         time.Minute,
			Thresholds:     map[string]interface{}{"requests": 50},
		},
		{
			Name:           MalwareRuleName,
			Enabled:        true,
			Priority:       50,
			Severity:       "HIGH",
			ThreatType:     "Malware Activity",
			Description:    "Suspicious file or network pattern indicative of malware",
			Recommendation: "Quarantine system and run antivirus scan",
			Patterns:       defaultMalwarePatterns,
		},
	}
}

func defaultRule(name string) model.Rule {
	for _, r := range DefaultRules() {
		if r.Name == name {
			return r
		}
	}
	return model.Rule{Name: name}
}
