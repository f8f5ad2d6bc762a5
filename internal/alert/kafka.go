package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"inidars/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaNotifier publishes alerts as JSON, keyed by source IP so one
// attacker's alerts stay ordered within a partition.
type KafkaNotifier struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  *logrus.Logger
}

func NewKafkaNotifier(cfg KafkaConfig, logger *logrus.Logger) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka notifier requires brokers and topic")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Errorf("kafka writer: "+msg, args...)
		}),
	}

	logger.Infof("Publishing alerts to Kafka topic %s (%v)", cfg.Topic, cfg.Brokers)
	return &KafkaNotifier{writer: writer, timeout: cfg.WriteTimeout, logger: logger}, nil
}

func (kn *KafkaNotifier) Name() string { return "kafka" }

func (kn *KafkaNotifier) SendAlert(alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), kn.timeout)
	defer cancel()

	err = kn.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.SourceIP),
		Value: data,
		Time:  alert.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to write alert to kafka: %w", err)
	}
	return nil
}

func (kn *KafkaNotifier) Close() error {
	return kn.writer.Close()
}
