package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleAlert() model.Alert {
	return model.Alert{
		ID:             "a-1",
		Timestamp:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Severity:       model.SeverityHigh,
		ThreatType:     "Brute Force Attack",
		Description:    "Multiple failed login attempts",
		Recommendation: "Block source IP",
		SourceIP:       "10.0.0.5",
		DestIP:         "10.0.0.1",
		DestPort:       22,
		Protocol:       "tcp",
		MLScore:        0.42,
		Confidence:     85,
		RuleName:       "brute_force",
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []model.Alert
	err    error
	got    chan struct{}
}

func newRecordingNotifier(err error) *recordingNotifier {
	return &recordingNotifier{err: err, got: make(chan struct{}, 16)}
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) SendAlert(alert model.Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	r.mu.Unlock()
	r.got <- struct{}{}
	return r.err
}

func TestTelegramSendAlert(t *testing.T) {
	messages := make(chan TelegramMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg TelegramMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		messages <- msg
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tn := NewTelegramNotifier(TelegramConfig{BotToken: "token123", ChatID: "42", APIURL: server.URL}, testLogger())
	require.NoError(t, tn.SendAlert(sampleAlert()))
	received := <-messages

	assert.Equal(t, "42", received.ChatID)
	assert.Contains(t, received.Text, "ALERT FIRING: Brute Force Attack")
	assert.Contains(t, received.Text, "severity: HIGH")
	assert.Contains(t, received.Text, "source: 10.0.0.5")
	assert.Contains(t, received.Text, "rule: brute_force")
}

func TestTelegramTemplateAndMarkdownStripped(t *testing.T) {
	messages := make(chan TelegramMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg TelegramMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		messages <- msg
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tn := NewTelegramNotifier(TelegramConfig{
		BotToken:        "t",
		ChatID:          "1",
		ParseMode:       "MarkdownV2",
		APIURL:          server.URL,
		MessageTemplate: `{{.Severity}} from {{.SourceIP}} at {{formatTime .Timestamp "15:04"}}`,
	}, testLogger())
	require.NoError(t, tn.SendAlert(sampleAlert()))
	received := <-messages

	assert.Equal(t, "HIGH from 10.0.0.5 at 10:00", received.Text)
	assert.Empty(t, received.ParseMode)
}

func TestTelegramTestMessage(t *testing.T) {
	messages := make(chan TelegramMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg TelegramMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		messages <- msg
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tn := NewTelegramNotifier(TelegramConfig{BotToken: "t", ChatID: "7", APIURL: server.URL}, testLogger())
	require.NoError(t, tn.SendTestMessage())
	assert.Contains(t, (<-messages).Text, "alerting is working")
}

func TestTelegramRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	tn := NewTelegramNotifier(TelegramConfig{
		BotToken:   "t",
		ChatID:     "1",
		APIURL:     server.URL,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, testLogger())

	err := tn.SendAlert(sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.Equal(t, int32(2), calls.Load())
}

func TestDispatcherFiltersBySeverity(t *testing.T) {
	met := metrics.NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(4, met, testLogger())
	all := newRecordingNotifier(nil)
	criticalOnly := newRecordingNotifier(nil)
	d.AddNotifier(all, model.SeverityLow)
	d.AddNotifier(criticalOnly, model.SeverityCritical)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	high := sampleAlert()
	critical := sampleAlert()
	critical.ID = "a-2"
	critical.Severity = model.SeverityCritical
	d.Publish(high)
	d.Publish(critical)

	for i := 0; i < 2; i++ {
		select {
		case <-all.got:
		case <-time.After(2 * time.Second):
			t.Fatal("alert not delivered")
		}
	}
	select {
	case <-criticalOnly.got:
	case <-time.After(2 * time.Second):
		t.Fatal("critical alert not delivered")
	}

	criticalOnly.mu.Lock()
	defer criticalOnly.mu.Unlock()
	require.Len(t, criticalOnly.alerts, 1)
	assert.Equal(t, "a-2", criticalOnly.alerts[0].ID)
}

func TestDispatcherCountsDropsAndErrors(t *testing.T) {
	met := metrics.NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(1, met, testLogger())
	failing := newRecordingNotifier(errors.New("down"))
	d.AddNotifier(failing, model.SeverityLow)

	// Not running yet: the second publish overflows the queue.
	d.Publish(sampleAlert())
	d.Publish(sampleAlert())
	assert.Equal(t, 1.0, testutil.ToFloat64(met.NotificationsDropped))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-failing.got:
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
	}
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(met.NotificationErrors.WithLabelValues("recording")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAlertSubject(t *testing.T) {
	assert.Equal(t, "inidars.alerts.critical", alertSubject("inidars.alerts", model.SeverityCritical))
	assert.True(t, strings.HasSuffix(alertSubject("x", model.SeverityLow), ".low"))
}
