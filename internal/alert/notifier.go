package alert

import (
	"context"
	"sync"

	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

// Notifier interface for alert notification
type Notifier interface {
	Name() string
	SendAlert(alert model.Alert) error
}

type route struct {
	notifier    Notifier
	minSeverity model.Severity
	queue       chan model.Alert
}

// Dispatcher fans recorded alerts out to notifiers. Every notifier has its
// own queue and goroutine, so a slow channel only delays itself.
type Dispatcher struct {
	routes    []*route
	queueSize int
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

func NewDispatcher(queueSize int, met *metrics.Metrics, logger *logrus.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Dispatcher{
		queueSize: queueSize,
		metrics:   met,
		logger:    logger,
	}
}

// AddNotifier registers n for alerts at or above minSeverity. Call before Run.
func (d *Dispatcher) AddNotifier(n Notifier, minSeverity model.Severity) {
	if !minSeverity.Valid() {
		minSeverity = model.SeverityLow
	}
	d.routes = append(d.routes, &route{
		notifier:    n,
		minSeverity: minSeverity,
		queue:       make(chan model.Alert, d.queueSize),
	})
	d.logger.Infof("Alert notifier %s enabled (min severity %s)", n.Name(), minSeverity)
}

// Publish queues alert for every matching notifier without blocking.
func (d *Dispatcher) Publish(alert model.Alert) {
	for _, r := range d.routes {
		if alert.Severity < r.minSeverity {
			continue
		}
		select {
		case r.queue <- alert:
		default:
			d.metrics.NotificationsDropped.Inc()
			d.logger.Warnf("Notifier %s queue full, dropping alert %s", r.notifier.Name(), alert.ID)
		}
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, r := range d.routes {
		wg.Add(1)
		go func(r *route) {
			defer wg.Done()
			d.deliver(ctx, r)
		}(r)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, r *route) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-r.queue:
			if err := r.notifier.SendAlert(alert); err != nil {
				d.metrics.NotificationErrors.WithLabelValues(r.notifier.Name()).Inc()
				d.logger.WithError(err).WithFields(logrus.Fields{
					"notifier": r.notifier.Name(),
					"alert_id": alert.ID,
				}).Error("Failed to send alert")
			}
		}
	}
}
