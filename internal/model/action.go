package model

import (
	"fmt"
	"time"
)

// ActionKind is the closed set of auditable operations.
type ActionKind string

const (
	ActionBlock       ActionKind = "BLOCK"
	ActionUnblock     ActionKind = "UNBLOCK"
	ActionDeleteAlert ActionKind = "DELETE_ALERT"
	ActionClearAlerts ActionKind = "CLEAR_ALERTS"
	ActionAlertRaised ActionKind = "ALERT_RAISED"
)

var actionKinds = map[ActionKind]bool{
	ActionBlock:       true,
	ActionUnblock:     true,
	ActionDeleteAlert: true,
	ActionClearAlerts: true,
	ActionAlertRaised: true,
}

func (k ActionKind) Valid() bool {
	return actionKinds[k]
}

// ParseActionKind rejects anything outside the known set.
func ParseActionKind(value string) (ActionKind, error) {
	kind := ActionKind(value)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown action kind %q", value)
	}
	return kind, nil
}

func (k *ActionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseActionKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

const (
	TargetIP    = "ip"
	TargetAlert = "alert"
	TargetStore = "store"

	ActorOperator = "operator"
	ActorSystem   = "system"
)

// Action is one entry of the append-only audit trail.
type Action struct {
	ID         int64             `json:"id"`
	Kind       ActionKind        `json:"action"`
	Target     string            `json:"target"`
	TargetType string            `json:"target_type"`
	Actor      string            `json:"actor"`
	Details    string            `json:"details"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
