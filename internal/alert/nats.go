package alert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"inidars/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// NATSNotifier publishes alerts on <prefix>.<severity>, e.g.
// inidars.alerts.critical, so subscribers can pick severities by subject.
type NATSNotifier struct {
	nc     *nats.Conn
	prefix string
	logger *logrus.Logger
}

func NewNATSNotifier(cfg NATSConfig, logger *logrus.Logger) (*NATSNotifier, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("inidars"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("Disconnected from NATS: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("Reconnected to NATS at %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "inidars.alerts"
	}

	logger.Infof("Publishing alerts to NATS subjects %s.*", prefix)
	return &NATSNotifier{nc: nc, prefix: prefix, logger: logger}, nil
}

func (nn *NATSNotifier) Name() string { return "nats" }

func (nn *NATSNotifier) SendAlert(alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := nn.nc.Publish(alertSubject(nn.prefix, alert.Severity), data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func alertSubject(prefix string, sev model.Severity) string {
	return prefix + "." + strings.ToLower(sev.String())
}

func (nn *NATSNotifier) Close() error {
	return nn.nc.Drain()
}
