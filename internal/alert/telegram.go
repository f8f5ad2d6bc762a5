package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"inidars/internal/model"

	"github.com/sirupsen/logrus"
)

const defaultTelegramAPI = "https://api.telegram.org"

type TelegramConfig struct {
	BotToken        string
	ChatID          string
	ParseMode       string
	MessageTemplate string
	// APIURL overrides the Bot API base URL.
	APIURL     string
	MaxRetries int
	RetryDelay time.Duration
}

type TelegramNotifier struct {
	cfg             TelegramConfig
	messageTemplate *template.Template
	client          *http.Client
	logger          *logrus.Logger
}

type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type TelegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewTelegramNotifier(cfg TelegramConfig, logger *logrus.Logger) *TelegramNotifier {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultTelegramAPI
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	tn := &TelegramNotifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}

	if strings.TrimSpace(cfg.MessageTemplate) != "" {
		funcMap := template.FuncMap{
			"formatTime": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
		}
		tmpl, err := template.New("telegram_message").Funcs(funcMap).Parse(cfg.MessageTemplate)
		if err != nil {
			logger.Warnf("Failed to parse Telegram message template: %v, using default format", err)
		} else {
			tn.messageTemplate = tmpl
		}
	}

	return tn
}

func (tn *TelegramNotifier) Name() string { return "telegram" }

func (tn *TelegramNotifier) SendAlert(alert model.Alert) error {
	message := tn.formatAlertMessage(alert)

	var lastErr error
	for i := 0; i < tn.cfg.MaxRetries; i++ {
		lastErr = tn.sendMessage(message)
		if lastErr == nil {
			return nil
		}

		tn.logger.Warnf("Failed to send alert (attempt %d/%d): %v", i+1, tn.cfg.MaxRetries, lastErr)

		if i < tn.cfg.MaxRetries-1 {
			time.Sleep(time.Duration(i+1) * tn.cfg.RetryDelay)
		}
	}

	return fmt.Errorf("failed to send alert after %d attempts: %w", tn.cfg.MaxRetries, lastErr)
}

func (tn *TelegramNotifier) formatAlertMessage(alert model.Alert) string {
	if tn.messageTemplate != nil {
		var buf bytes.Buffer
		err := tn.messageTemplate.Execute(&buf, alert)
		if err != nil {
			tn.logger.Warnf("Failed to execute message template: %v, using default format", err)
		} else {
			return buf.String()
		}
	}

	rule := alert.RuleName
	if rule == "" {
		rule = "none"
	}

	return fmt.Sprintf("ALERT FIRING: %s\n\n"+
		"severity: %s\n"+
		"time: %s\n"+
		"source: %s\n"+
		"destination: %s:%d/%s\n"+
		"rule: %s\n"+
		"ml_score: %.2f (confidence %.0f%%)\n"+
		"description: %s\n"+
		"recommendation: %s",
		alert.ThreatType,
		alert.Severity,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		alert.SourceIP,
		alert.DestIP, alert.DestPort, alert.Protocol,
		rule,
		alert.MLScore, alert.Confidence,
		alert.Description,
		alert.Recommendation)
}

func (tn *TelegramNotifier) sendMessage(text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(tn.cfg.APIURL, "/"), tn.cfg.BotToken)

	// Markdown modes reject unescaped characters common in payloads.
	parseMode := ""
	if tn.cfg.ParseMode != "" && tn.cfg.ParseMode != "Markdown" && tn.cfg.ParseMode != "MarkdownV2" {
		parseMode = tn.cfg.ParseMode
	}

	message := TelegramMessage{
		ChatID:    tn.cfg.ChatID,
		Text:      text,
		ParseMode: parseMode,
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var telegramResp TelegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&telegramResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error: %s", telegramResp.Description)
	}

	tn.logger.Debug("Alert sent to Telegram")
	return nil
}

func (tn *TelegramNotifier) SendTestMessage() error {
	return tn.sendMessage("Test Message\n\nINIDARS alerting is working correctly!")
}
