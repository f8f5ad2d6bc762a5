package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rule is the configuration of one detection rule as written in the YAML file.
type Rule struct {
	Name           string                 `yaml:"name" json:"name"`
	Enabled        bool                   `yaml:"enabled" json:"enabled"`
	Priority       int                    `yaml:"priority" json:"priority"`
	Severity       string                 `yaml:"severity" json:"severity"`
	ThreatType     string                 `yaml:"threat_type" json:"threat_type"`
	Description    string                 `yaml:"description" json:"description"`
	Recommendation string                 `yaml:"recommendation" json:"recommendation"`
	Window         time.Duration          `yaml:"window,omitempty" json:"window,omitempty"`
	Thresholds     map[string]interface{} `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Patterns       []string               `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// UnmarshalJSON accepts the window as a duration string ("5m") like the
// YAML form, or as integer nanoseconds.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	aux := struct {
		*plain
		Window interface{} `json:"window,omitempty"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch v := aux.Window.(type) {
	case nil:
		r.Window = 0
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("rule %q: invalid window: %w", r.Name, err)
		}
		r.Window = d
	case float64:
		r.Window = time.Duration(v)
	default:
		return fmt.Errorf("rule %q: window must be a duration string", r.Name)
	}
	return nil
}

// MarshalJSON writes the window as a duration string.
func (r Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	aux := struct {
		plain
		Window string `json:"window,omitempty"`
	}{plain: plain(r)}
	if r.Window > 0 {
		aux.Window = r.Window.String()
	}
	return json.Marshal(aux)
}

// Threshold reads a numeric threshold, falling back to def when it is
// missing or not a number.
func (r *Rule) Threshold(key string, def float64) float64 {
	if r.Thresholds == nil {
		return def
	}
	switch v := r.Thresholds[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	case float32:
		return float64(v)
	}
	return def
}

// MinSeverity parses the configured severity floor, defaulting to def.
func (r *Rule) MinSeverity(def Severity) Severity {
	if r.Severity == "" {
		return def
	}
	s, err := ParseSeverity(r.Severity)
	if err != nil {
		return def
	}
	return s
}
