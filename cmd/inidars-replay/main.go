package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inidars/internal/utils"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Result is what the engine reported for one replayed event.
type Result struct {
	AlertCreated bool   `json:"alert_created"`
	AlertID      string `json:"alert_id"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	Error        string `json:"error"`
}

// Sender delivers one event. Senders that cannot observe the outcome return
// a zero Result.
type Sender interface {
	Send(ctx context.Context, event map[string]interface{}) (Result, error)
	Close() error
}

type httpSender struct {
	url    string
	client *http.Client
}

func newHTTPSender(baseURL string) *httpSender {
	return &httpSender{
		url:    strings.TrimSuffix(baseURL, "/") + "/api/events",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *httpSender) Send(ctx context.Context, event map[string]interface{}) (Result, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return Result{}, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, body)
	}
	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("engine returned %d: %s", resp.StatusCode, result.Error)
	}
	return result, nil
}

func (s *httpSender) Close() error { return nil }

type kafkaSender struct {
	writer *kafka.Writer
}

func newKafkaSender(brokers []string, topic string) *kafkaSender {
	return &kafkaSender{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (s *kafkaSender) Send(ctx context.Context, event map[string]interface{}) (Result, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Result{}, err
	}
	key, _ := event["source_ip"].(string)
	return Result{}, s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data})
}

func (s *kafkaSender) Close() error { return s.writer.Close() }

func main() {
	var (
		target  = flag.String("target", "http://localhost:5000", "Engine base URL")
		brokers = flag.String("kafka-brokers", "", "Comma-separated Kafka brokers; publishes to -kafka-topic instead of HTTP")
		topic   = flag.String("kafka-topic", "inidars.events", "Kafka topic for -kafka-brokers")
		delay   = flag.Duration("delay", 100*time.Millisecond, "Pause between events")
		count   = flag.Int("count", 0, "Override the scenario's event count")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <scenario>...\n\nScenarios: %s, all\n\nFlags:\n",
			os.Args[0], strings.Join(scenarioNames(), ", "))
		flag.PrintDefaults()
	}
	flag.Parse()

	names := flag.Args()
	if len(names) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if len(names) == 1 && names[0] == "all" {
		names = scenarioNames()
	}
	for _, name := range names {
		if _, ok := scenarios[name]; !ok {
			fmt.Fprintf(os.Stderr, "unknown scenario %q\n", name)
			flag.Usage()
			os.Exit(2)
		}
	}

	logger := utils.NewLogger("INFO", "text")

	var sender Sender
	if *brokers != "" {
		sender = newKafkaSender(strings.Split(*brokers, ","), *topic)
		logger.Infof("Publishing events to Kafka topic %s", *topic)
	} else {
		sender = newHTTPSender(*target)
		logger.Infof("Posting events to %s", *target)
	}
	defer sender.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(*seed))
	for _, name := range names {
		sc := scenarios[name]
		if *count > 0 {
			sc.Count = *count
		}
		if err := replay(ctx, sender, sc, rng, *delay, logger); err != nil {
			logger.Errorf("Scenario %s aborted: %v", name, err)
			return
		}
	}
}

// replay sends one scenario and logs the detection rate.
func replay(ctx context.Context, sender Sender, sc Scenario, rng *rand.Rand, delay time.Duration, logger *logrus.Logger) error {
	logger.Infof("Starting %s (%d events)", sc.Name, sc.Count)

	alerts := 0
	for i := 0; i < sc.Count; i++ {
		result, err := sender.Send(ctx, sc.Generate(rng, i, time.Now().UTC()))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("Event %d: %v", i+1, err)
		} else if result.AlertCreated {
			alerts++
			logger.WithFields(logrus.Fields{
				"event":    i + 1,
				"severity": result.Severity,
				"alert_id": result.AlertID,
			}).Info(result.Message)
		} else {
			logger.Debugf("Event %d processed, no threat", i+1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	rate := 0.0
	if sc.Count > 0 {
		rate = float64(alerts) / float64(sc.Count) * 100
	}
	logger.Infof("%s complete: %d events, %d alerts (%.1f%% detection)", sc.Name, sc.Count, alerts, rate)
	return nil
}
