package main

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Scenario generates Count events; Generate receives the event index.
type Scenario struct {
	Name     string
	Count    int
	Generate func(rng *rand.Rand, i int, now time.Time) map[string]interface{}
}

func between(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

var scenarios = map[string]Scenario{
	"brute_force": {
		Name:  "Brute Force Attack",
		Count: 10,
		Generate: func(rng *rand.Rand, i int, now time.Time) map[string]interface{} {
			action := "failed"
			if i >= 8 {
				action = "denied"
			}
			return map[string]interface{}{
				"timestamp":        now.Format(time.RFC3339Nano),
				"source_ip":        "192.168.1.100",
				"dest_ip":          "10.0.0.50",
				"source_port":      between(rng, 40000, 60000),
				"dest_port":        22,
				"protocol":         "tcp",
				"action":           action,
				"bytes":            between(rng, 100, 500),
				"packets":          between(rng, 5, 20),
				"event_type":       "authentication",
				"username":         fmt.Sprintf("admin_%d", i),
				"password_attempt": fmt.Sprintf("pass%d", i),
			}
		},
	},
	"port_scan": {
		Name:  "Port Scan Attack",
		Count: 15,
		Generate: func(rng *rand.Rand, i int, now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"timestamp":   now.Format(time.RFC3339Nano),
				"source_ip":   "203.0.113.45",
				"dest_ip":     "10.0.0.50",
				"source_port": between(rng, 40000, 60000),
				"dest_port":   20 + i,
				"protocol":    "tcp",
				"action":      "allow",
				"bytes":       between(rng, 50, 100),
				"packets":     1,
				"event_type":  "network",
				"tcp_flags":   "SYN",
			}
		},
	},
	"sql_injection": {
		Name:  "SQL Injection Attack",
		Count: 5,
		Generate: func(rng *rand.Rand, i int, now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"timestamp":   now.Format(time.RFC3339Nano),
				"source_ip":   "198.51.100.23",
				"dest_ip":     "10.0.0.80",
				"source_port": between(rng, 40000, 60000),
				"dest_port":   443,
				"protocol":    "http",
				"action":      "allow",
				"bytes":       between(rng, 200, 1000),
				"packets":     between(rng, 10, 30),
				"event_type":  "web",
				"request":     "/api/users?id=1 OR 1=1 UNION SELECT * FROM users--",
				"payload":     "malicious SQL query",
			}
		},
	},
	"ddos": {
		Name:  "DDoS Attack",
		Count: 60,
		Generate: func(rng *rand.Rand, i int, now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"timestamp":   now.Format(time.RFC3339Nano),
				"source_ip":   "203.0.113.200",
				"dest_ip":     "10.0.0.100",
				"source_port": between(rng, 1024, 65535),
				"dest_port":   80,
				"protocol":    "tcp",
				"action":      "allow",
				"bytes":       between(rng, 100, 500),
				"packets":     between(rng, 50, 200),
				"event_type":  "network",
				"flood_type":  "SYN",
			}
		},
	},
	"malware": {
		Name:  "Malware Activity",
		Count: 8,
		Generate: func(rng *rand.Rand, i int, now time.Time) map[string]interface{} {
			ports := []int{6667, 8080, 4444}
			return map[string]interface{}{
				"timestamp":   now.Format(time.RFC3339Nano),
				"source_ip":   "10.0.0.150",
				"dest_ip":     "185.220.101.5",
				"source_port": between(rng, 40000, 60000),
				"dest_port":   ports[rng.Intn(len(ports))],
				"protocol":    "tcp",
				"action":      "allow",
				"bytes":       between(rng, 5000, 50000),
				"packets":     between(rng, 100, 500),
				"event_type":  "network",
				"process":     "suspicious.exe",
				"file_hash":   fmt.Sprintf("a1b2c3d4e5f6%d", i),
				"behavior":    "suspicious outbound connection",
			}
		},
	},
	"normal": {
		Name:  "Normal Traffic",
		Count: 20,
		Generate: func(rng *rand.Rand, i int, now time.Time) map[string]interface{} {
			ports := []int{80, 443, 22, 3306}
			protocols := []string{"tcp", "udp"}
			return map[string]interface{}{
				"timestamp":   now.Format(time.RFC3339Nano),
				"source_ip":   fmt.Sprintf("10.0.0.%d", between(rng, 1, 50)),
				"dest_ip":     fmt.Sprintf("10.0.0.%d", between(rng, 51, 100)),
				"source_port": between(rng, 1024, 65535),
				"dest_port":   ports[rng.Intn(len(ports))],
				"protocol":    protocols[rng.Intn(len(protocols))],
				"action":      "allow",
				"bytes":       between(rng, 100, 10000),
				"packets":     between(rng, 5, 100),
				"event_type":  "network",
			}
		},
	},
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
