package alert

import (
	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier sends alerts to local logs
type LogAlertNotifier struct {
	logger *logrus.Logger
}

func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

func (ln *LogAlertNotifier) Name() string { return "log" }

func (ln *LogAlertNotifier) SendAlert(alert model.Alert) error {
	ln.logger.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"source_ip":  alert.SourceIP,
		"dest_ip":    alert.DestIP,
		"ml_score":   alert.MLScore,
		"confidence": alert.Confidence,
		"rule":       alert.RuleName,
	}).Warnf("ALERT [%s] %s: %s", alert.Severity, alert.ThreatType, alert.Description)
	return nil
}
