// Package source feeds events from external telemetry into intake.
package source

import (
	"context"
	"errors"

	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	OriginHubble = "hubble"
	OriginKafka  = "kafka"
)

// Submitter accepts events for scoring.
type Submitter interface {
	Submit(ctx context.Context, event model.Event, origin string) error
}

// submit hands one event to intake. Rejected and dropped events are already
// counted by intake, so they are only logged here.
func submit(ctx context.Context, sink Submitter, event model.Event, origin string, logger *logrus.Logger) {
	err := sink.Submit(ctx, event, origin)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrQueueFull):
		logger.WithField("origin", origin).Debug("Intake queue full, event dropped")
	case model.IsValidation(err):
		logger.WithFields(logrus.Fields{
			"origin": origin,
			"error":  err,
		}).Debug("Skipping invalid event")
	case errors.Is(err, context.Canceled):
	default:
		logger.WithError(err).WithField("origin", origin).Warn("Failed to submit event")
	}
}
