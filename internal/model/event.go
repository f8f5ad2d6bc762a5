package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event is a single network/security observation submitted for scoring.
// Events are never persisted; only the alerts derived from them are.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	SourceIP   string         `json:"source_ip" validate:"required,ip"`
	DestIP     string         `json:"dest_ip" validate:"required,ip"`
	SourcePort int            `json:"source_port" validate:"gte=0,lte=65535"`
	DestPort   int            `json:"dest_port" validate:"gte=0,lte=65535"`
	Protocol   string         `json:"protocol" validate:"required,max=32"`
	Action     string         `json:"action,omitempty" validate:"max=64"`
	Bytes      int64          `json:"bytes" validate:"gte=0"`
	Packets    int64          `json:"packets" validate:"gte=0"`
	EventType  string         `json:"event_type,omitempty" validate:"max=64"`
	TCPFlags   string         `json:"tcp_flags,omitempty" validate:"max=64"`
	Payload    string         `json:"payload,omitempty" validate:"max=65536"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// wireEvent mirrors the inbound JSON shape, where the timestamp may be absent
// or written without a zone.
type wireEvent struct {
	Timestamp  string `json:"timestamp"`
	SourceIP   string `json:"source_ip"`
	DestIP     string `json:"dest_ip"`
	SourcePort int    `json:"source_port"`
	DestPort   int    `json:"dest_port"`
	Protocol   string `json:"protocol"`
	Action     string `json:"action"`
	Bytes      int64  `json:"bytes"`
	Packets    int64  `json:"packets"`
	EventType  string `json:"event_type"`
	TCPFlags   string `json:"tcp_flags"`
	Payload    string `json:"payload"`
}

var knownEventFields = map[string]bool{
	"timestamp": true, "source_ip": true, "dest_ip": true, "source_port": true,
	"dest_port": true, "protocol": true, "action": true, "bytes": true,
	"packets": true, "event_type": true, "tcp_flags": true, "payload": true,
	"raw": true,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// DecodeEvent parses an inbound JSON event. Fields the engine does not model
// are kept in Raw so signature rules can still inspect them.
func DecodeEvent(data []byte) (*Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &ValidationError{Field: "body", Message: fmt.Sprintf("malformed event: %v", err)}
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, &ValidationError{Field: "body", Message: fmt.Sprintf("malformed event: %v", err)}
	}

	event := &Event{
		SourceIP:   wire.SourceIP,
		DestIP:     wire.DestIP,
		SourcePort: wire.SourcePort,
		DestPort:   wire.DestPort,
		Protocol:   wire.Protocol,
		Action:     wire.Action,
		Bytes:      wire.Bytes,
		Packets:    wire.Packets,
		EventType:  wire.EventType,
		TCPFlags:   wire.TCPFlags,
		Payload:    wire.Payload,
	}

	if wire.Timestamp != "" {
		ts, err := ParseTimestamp(wire.Timestamp)
		if err != nil {
			return nil, &ValidationError{Field: "timestamp", Message: err.Error()}
		}
		event.Timestamp = ts
	}

	if nested, ok := all["raw"].(map[string]any); ok {
		event.Raw = nested
	}
	for key, value := range all {
		if knownEventFields[key] {
			continue
		}
		if event.Raw == nil {
			event.Raw = make(map[string]any)
		}
		event.Raw[key] = value
	}

	return event, nil
}

// ParseTimestamp accepts RFC 3339 and zone-less ISO 8601 timestamps; the
// latter are interpreted as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format %q", value)
}

// SearchFields returns the lowercased values signature rules match against:
// the payload (when set) followed by every raw field value in key order.
// Keys are not included.
func (e *Event) SearchFields() []string {
	keys := make([]string, 0, len(e.Raw))
	for key := range e.Raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys)+1)
	if e.Payload != "" {
		fields = append(fields, strings.ToLower(e.Payload))
	}
	for _, key := range keys {
		if value := strings.ToLower(fmt.Sprint(e.Raw[key])); value != "" {
			fields = append(fields, value)
		}
	}
	return fields
}

// SYNOnly reports whether the event carries a bare TCP SYN (connection probe).
func (e *Event) SYNOnly() bool {
	if e.TCPFlags == "" {
		return false
	}
	flags := strings.ToUpper(e.TCPFlags)
	return strings.Contains(flags, "SYN") && !strings.Contains(flags, "ACK")
}
