package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"LOW", SeverityLow, false},
		{"medium", SeverityMedium, false},
		{" High ", SeverityHigh, false},
		{"CRITICAL", SeverityCritical, false},
		{"SEVERE", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeverityOrderingAndJSON(t *testing.T) {
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityHigh < SeverityCritical)
	assert.Equal(t, SeverityHigh, SeverityMedium.Max(SeverityHigh))
	assert.Equal(t, SeverityCritical, SeverityCritical.Max(SeverityLow))

	data, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"HIGH"}`, string(data))

	var decoded struct {
		S Severity `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"critical"}`), &decoded))
	assert.Equal(t, SeverityCritical, decoded.S)

	assert.Error(t, json.Unmarshal([]byte(`{"s":"bogus"}`), &decoded))

	_, err = json.Marshal(struct{ S Severity }{})
	assert.Error(t, err, "zero severity must not serialize")
}

func TestActionKindIsClosed(t *testing.T) {
	for _, kind := range []string{"BLOCK", "UNBLOCK", "DELETE_ALERT", "CLEAR_ALERTS", "ALERT_RAISED"} {
		_, err := ParseActionKind(kind)
		assert.NoError(t, err, kind)
	}

	var action Action
	err := json.Unmarshal([]byte(`{"id":1,"action":"REBOOT","target":"x"}`), &action)
	assert.Error(t, err)
}

func TestDecodeEvent(t *testing.T) {
	body := []byte(`{
		"timestamp": "2024-03-01T10:15:00.250000",
		"source_ip": "192.168.1.100",
		"dest_ip": "10.0.0.5",
		"source_port": 51000,
		"dest_port": 22,
		"protocol": "SSH",
		"action": "failed_login",
		"bytes": 512,
		"packets": 4,
		"user": "root",
		"process": "sshd"
	}`)

	event, err := DecodeEvent(body)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.100", event.SourceIP)
	assert.Equal(t, 22, event.DestPort)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 250000000, time.UTC), event.Timestamp)
	assert.Equal(t, map[string]any{"user": "root", "process": "sshd"}, event.Raw)
	assert.Equal(t, []string{"sshd", "root"}, event.SearchFields())
}

func TestDecodeEventRejectsMalformedInput(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"source_ip": `))
	assert.True(t, IsValidation(err))

	_, err = DecodeEvent([]byte(`{"source_ip":"1.2.3.4","timestamp":"yesterday"}`))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "timestamp")
}

func TestEventSYNOnly(t *testing.T) {
	assert.True(t, (&Event{TCPFlags: "SYN"}).SYNOnly())
	assert.False(t, (&Event{TCPFlags: "SYN,ACK"}).SYNOnly())
	assert.False(t, (&Event{}).SYNOnly())
}

func TestRuleWindowJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"duration string", `{"name":"ddos","window":"5m"}`, 5 * time.Minute},
		{"nanoseconds", `{"name":"ddos","window":60000000000}`, time.Minute},
		{"absent", `{"name":"ddos"}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rule Rule
			require.NoError(t, json.Unmarshal([]byte(tt.in), &rule))
			assert.Equal(t, "ddos", rule.Name)
			assert.Equal(t, tt.want, rule.Window)
		})
	}

	var rule Rule
	assert.Error(t, json.Unmarshal([]byte(`{"name":"ddos","window":"soon"}`), &rule))
	assert.Error(t, json.Unmarshal([]byte(`{"name":"ddos","window":true}`), &rule))

	data, err := json.Marshal(Rule{Name: "port_scan", Window: 90 * time.Second})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"window":"1m30s"`)

	var back Rule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 90*time.Second, back.Window)
}

func TestRuleThreshold(t *testing.T) {
	rule := Rule{Thresholds: map[string]interface{}{"count": 3, "ratio": 0.5, "name": "x"}}
	assert.Equal(t, 3.0, rule.Threshold("count", 10))
	assert.Equal(t, 0.5, rule.Threshold("ratio", 1))
	assert.Equal(t, 7.0, rule.Threshold("name", 7))
	assert.Equal(t, 9.0, rule.Threshold("missing", 9))

	assert.Equal(t, SeverityHigh, (&Rule{}).MinSeverity(SeverityHigh))
	assert.Equal(t, SeverityMedium, (&Rule{Severity: "medium"}).MinSeverity(SeverityHigh))
}

func TestBlockedIPExpired(t *testing.T) {
	now := time.Now()
	expires := now.Add(time.Minute)
	b := BlockedIP{ExpiresAt: &expires}
	assert.False(t, b.Expired(now))
	assert.True(t, b.Expired(expires))
	assert.False(t, (&BlockedIP{}).Expired(now.Add(100*365*24*time.Hour)))
}
