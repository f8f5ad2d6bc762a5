package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inidars/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaSource consumes JSON events from a topic. Offsets are committed once
// the event has been handed to intake, whatever the outcome.
type KafkaSource struct {
	reader *kafka.Reader
	sink   Submitter
	logger *logrus.Logger
}

func NewKafkaSource(cfg KafkaConfig, sink Submitter, logger *logrus.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka source requires brokers and topic")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "inidars"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Errorf("kafka reader: "+msg, args...)
		}),
	})

	logger.Infof("Consuming events from Kafka topic %s (group %s)", cfg.Topic, cfg.GroupID)
	return &KafkaSource{reader: reader, sink: sink, logger: logger}, nil
}

// Run consumes until ctx is cancelled.
func (k *KafkaSource) Run(ctx context.Context) {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			k.logger.WithError(err).Warn("Failed to fetch Kafka message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		k.handle(ctx, msg)

		if err := k.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.logger.WithError(err).Warn("Failed to commit Kafka offset")
		}
	}
}

func (k *KafkaSource) handle(ctx context.Context, msg kafka.Message) {
	event, err := model.DecodeEvent(msg.Value)
	if err != nil {
		k.logger.WithFields(logrus.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"error":     err,
		}).Warn("Skipping undecodable Kafka message")
		return
	}
	submit(ctx, k.sink, *event, OriginKafka, k.logger)
}

func (k *KafkaSource) Close() error {
	return k.reader.Close()
}
