// Package intake validates inbound events, queues them and runs the worker
// pool that turns them into verdicts and alerts.
package intake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

type Scorer interface {
	Score(ctx context.Context, event model.Event) model.Verdict
	BlockedSourceVerdict(event model.Event) model.Verdict
}

type AlertRecorder interface {
	Record(verdict model.Verdict, event model.Event) model.Alert
}

type BlockChecker interface {
	IsBlocked(ip string) bool
}

// Publisher receives every recorded alert for fan-out. Publish must not block.
type Publisher interface {
	Publish(alert model.Alert)
}

// BlockedTrafficMode decides what happens to events from blocked sources.
type BlockedTrafficMode string

const (
	// BlockedTrafficAlert records a CRITICAL blocked-source alert.
	BlockedTrafficAlert BlockedTrafficMode = "alert"
	// BlockedTrafficDrop discards the event after counting it.
	BlockedTrafficDrop BlockedTrafficMode = "drop"
)

type Config struct {
	QueueSize      int
	Workers        int
	BlockedTraffic BlockedTrafficMode
}

type OutcomeStatus string

const (
	OutcomeAlert   OutcomeStatus = "alert"
	OutcomeClean   OutcomeStatus = "clean"
	OutcomeDropped OutcomeStatus = "dropped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the result of processing one event.
type Outcome struct {
	Status     OutcomeStatus  `json:"status"`
	AlertID    string         `json:"alert_id,omitempty"`
	Severity   model.Severity `json:"severity,omitempty"`
	ThreatType string         `json:"threat_type,omitempty"`
	MLScore    float64        `json:"ml_score"`
	Message    string         `json:"message"`
}

// Counters is a point-in-time copy of the intake counters.
type Counters struct {
	Received      int64
	Processed     int64
	Rejected      int64
	Dropped       int64
	BlockedSource int64
}

type job struct {
	event  model.Event
	origin string
	reply  chan Outcome
}

type Intake struct {
	cfg        Config
	queue      chan job
	validator  *Validator
	scorer     Scorer
	alerts     AlertRecorder
	reputation BlockChecker
	publishers []Publisher
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	received      atomic.Int64
	processed     atomic.Int64
	rejected      atomic.Int64
	dropped       atomic.Int64
	blockedSource atomic.Int64
}

func NewIntake(cfg Config, scorer Scorer, alerts AlertRecorder, reputation BlockChecker, met *metrics.Metrics, logger *logrus.Logger) *Intake {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BlockedTraffic == "" {
		cfg.BlockedTraffic = BlockedTrafficAlert
	}
	return &Intake{
		cfg:        cfg,
		queue:      make(chan job, cfg.QueueSize),
		validator:  NewValidator(),
		scorer:     scorer,
		alerts:     alerts,
		reputation: reputation,
		metrics:    met,
		logger:     logger,
	}
}

// AddPublisher registers an alert consumer. Call before Run.
func (in *Intake) AddPublisher(p Publisher) {
	in.publishers = append(in.publishers, p)
}

// Submit validates and enqueues an event without waiting for the result.
// A full queue returns ErrQueueFull; the event is counted as dropped.
func (in *Intake) Submit(ctx context.Context, event model.Event, origin string) error {
	if err := in.prepare(&event, origin); err != nil {
		return err
	}
	return in.enqueue(ctx, job{event: event, origin: origin})
}

// SubmitAndWait enqueues an event and waits for a worker to process it.
func (in *Intake) SubmitAndWait(ctx context.Context, event model.Event, origin string) (Outcome, error) {
	if err := in.prepare(&event, origin); err != nil {
		return Outcome{}, err
	}
	reply := make(chan Outcome, 1)
	if err := in.enqueue(ctx, job{event: event, origin: origin, reply: reply}); err != nil {
		return Outcome{}, err
	}

	select {
	case outcome := <-reply:
		return outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (in *Intake) prepare(event *model.Event, origin string) error {
	if err := in.validator.Normalize(event); err != nil {
		in.rejected.Add(1)
		in.metrics.EventsRejected.WithLabelValues(origin).Inc()
		in.logger.WithFields(logrus.Fields{
			"origin": origin,
			"error":  err,
		}).Debug("Rejected event")
		return err
	}
	return nil
}

func (in *Intake) enqueue(ctx context.Context, j job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case in.queue <- j:
		in.received.Add(1)
		in.metrics.EventsReceived.WithLabelValues(j.origin).Inc()
		in.metrics.QueueDepth.Set(float64(len(in.queue)))
		return nil
	default:
		in.dropped.Add(1)
		in.metrics.EventsDropped.WithLabelValues(j.origin).Inc()
		return fmt.Errorf("%s event from %s: %w", j.origin, j.event.SourceIP, model.ErrQueueFull)
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has returned. Events still queued at shutdown are discarded.
func (in *Intake) Run(ctx context.Context) {
	in.logger.Infof("Starting %d intake workers (queue size %d, blocked traffic: %s)",
		in.cfg.Workers, in.cfg.QueueSize, in.cfg.BlockedTraffic)

	var wg sync.WaitGroup
	for i := 0; i < in.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.worker(ctx)
		}()
	}
	wg.Wait()

	in.logger.Info("Intake workers stopped")
}

func (in *Intake) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-in.queue:
			in.metrics.QueueDepth.Set(float64(len(in.queue)))
			outcome := in.process(ctx, j.event)
			if j.reply != nil {
				j.reply <- outcome
			}
		}
	}
}

// process runs handle with panic recovery so one bad event cannot kill a
// worker.
func (in *Intake) process(ctx context.Context, event model.Event) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			in.metrics.WorkerPanics.Inc()
			in.metrics.EventsProcessed.WithLabelValues(string(OutcomeFailed)).Inc()
			in.logger.WithFields(logrus.Fields{
				"source_ip": event.SourceIP,
				"panic":     r,
			}).Error("Recovered from panic while processing event")
			outcome = Outcome{Status: OutcomeFailed, Message: "Internal error while processing event"}
		}
	}()

	outcome = in.handle(ctx, event)
	in.processed.Add(1)
	in.metrics.EventsProcessed.WithLabelValues(string(outcome.Status)).Inc()
	return outcome
}

// handle is the only place that consults the block list. Blocked sources
// never reach the scorer.
func (in *Intake) handle(ctx context.Context, event model.Event) Outcome {
	if in.reputation.IsBlocked(event.SourceIP) {
		in.blockedSource.Add(1)
		in.metrics.BlockedSourceEvents.Inc()

		if in.cfg.BlockedTraffic == BlockedTrafficDrop {
			return Outcome{
				Status:  OutcomeDropped,
				Message: fmt.Sprintf("Source %s is blocked; event dropped", event.SourceIP),
			}
		}
		return in.raise(in.scorer.BlockedSourceVerdict(event), event)
	}

	verdict := in.scorer.Score(ctx, event)
	if !verdict.IsThreat {
		return Outcome{
			Status:  OutcomeClean,
			MLScore: verdict.MLScore,
			Message: "Event processed, no threat detected",
		}
	}
	return in.raise(verdict, event)
}

func (in *Intake) raise(verdict model.Verdict, event model.Event) Outcome {
	alert := in.alerts.Record(verdict, event)
	for _, p := range in.publishers {
		p.Publish(alert)
	}

	in.logger.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"severity":    alert.Severity,
		"threat_type": alert.ThreatType,
		"source_ip":   alert.SourceIP,
		"mode":        alert.ScoringMode,
	}).Info("Alert raised")

	return Outcome{
		Status:     OutcomeAlert,
		AlertID:    alert.ID,
		Severity:   alert.Severity,
		ThreatType: alert.ThreatType,
		MLScore:    alert.MLScore,
		Message:    fmt.Sprintf("%s alert created: %s", alert.Severity, alert.ThreatType),
	}
}

func (in *Intake) Counters() Counters {
	return Counters{
		Received:      in.received.Load(),
		Processed:     in.processed.Load(),
		Rejected:      in.rejected.Load(),
		Dropped:       in.dropped.Load(),
		BlockedSource: in.blockedSource.Load(),
	}
}
