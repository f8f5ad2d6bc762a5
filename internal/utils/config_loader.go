package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"inidars/internal/model"
	"inidars/internal/scoring"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "configs/inidars.yaml"

// LoadConfig reads and validates the YAML config. A missing file is reported
// with an error wrapping fs.ErrNotExist so callers can fall back to
// GetDefaultConfig.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultConfigPath
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault loads filename, or returns the defaults when it does
// not exist. fromFile reports which one happened.
func LoadConfigOrDefault(filename string) (config *Config, fromFile bool, err error) {
	config, err = LoadConfig(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return GetDefaultConfig(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return config, true, nil
}

// Validate fills defaults for unset values and rejects inconsistent ones.
func (c *Config) Validate() error {
	if c.Application.ListenAddr == "" {
		c.Application.ListenAddr = ":5000"
	}
	if c.Application.ShutdownTimeoutSeconds <= 0 {
		c.Application.ShutdownTimeoutSeconds = 10
	}
	if c.Application.AllowedOrigin == "" {
		c.Application.AllowedOrigin = "*"
	}

	if c.Intake.QueueSize <= 0 {
		c.Intake.QueueSize = 1000
	}
	if c.Intake.Workers <= 0 {
		c.Intake.Workers = 4
	}
	if c.Intake.RequestTimeoutSeconds <= 0 {
		c.Intake.RequestTimeoutSeconds = 5
	}
	c.Intake.BlockedTraffic = strings.ToLower(c.Intake.BlockedTraffic)
	switch c.Intake.BlockedTraffic {
	case "":
		c.Intake.BlockedTraffic = "alert"
	case "alert", "drop":
	default:
		return fmt.Errorf("intake.blocked_traffic must be \"alert\" or \"drop\", got %q", c.Intake.BlockedTraffic)
	}

	if c.Scoring.AlertThreshold == 0 {
		c.Scoring.AlertThreshold = 0.6
	}
	if c.Scoring.AlertThreshold < 0 || c.Scoring.AlertThreshold > 1 {
		return fmt.Errorf("scoring.alert_threshold must be within [0,1], got %v", c.Scoring.AlertThreshold)
	}
	if c.Scoring.DegradedConfidenceCap <= 0 {
		c.Scoring.DegradedConfidenceCap = 60
	}
	if c.Scoring.DegradedConfidenceCap > 100 {
		return fmt.Errorf("scoring.degraded_confidence_cap must be at most 100, got %v", c.Scoring.DegradedConfidenceCap)
	}
	if len(c.Scoring.SeverityTable) == 0 {
		c.Scoring.SeverityTable = scoring.DefaultSeverityTable()
	}
	if len(c.Scoring.ConfidenceTable) == 0 {
		c.Scoring.ConfidenceTable = scoring.DefaultConfidenceTable()
	}
	if _, err := scoring.NewThresholds(c.Scoring.SeverityTable, c.Scoring.ConfidenceTable); err != nil {
		return fmt.Errorf("scoring tables: %w", err)
	}

	if c.Rules.MaxTrackedIPs <= 0 {
		c.Rules.MaxTrackedIPs = 10000
	}
	for i := range c.Rules.Definitions {
		if c.Rules.Definitions[i].Name == "" {
			return fmt.Errorf("rules.definitions[%d]: name is required", i)
		}
	}

	if c.Storage.MaxAlerts <= 0 {
		c.Storage.MaxAlerts = 10000
	}

	if c.Reputation.Redis.Enabled && c.Reputation.Redis.Addr == "" {
		return fmt.Errorf("reputation.redis.addr is required when redis is enabled")
	}
	if c.Reputation.Redis.KeyPrefix == "" {
		c.Reputation.Redis.KeyPrefix = "inidars:blocked:"
	}

	if c.Audit.Postgres.Enabled && c.Audit.Postgres.DSN == "" {
		return fmt.Errorf("audit.postgres.dsn is required when postgres is enabled")
	}
	if c.Audit.MaxEntries < 0 {
		return fmt.Errorf("audit.max_entries must not be negative")
	}
	if c.Audit.Postgres.QueueSize <= 0 {
		c.Audit.Postgres.QueueSize = 1000
	}

	if c.Sources.Hubble.Server == "" {
		c.Sources.Hubble.Server = "localhost:4245"
	}
	if c.Sources.Hubble.ReconnectSeconds <= 0 {
		c.Sources.Hubble.ReconnectSeconds = 5
	}
	if c.Sources.Kafka.Enabled && (len(c.Sources.Kafka.Brokers) == 0 || c.Sources.Kafka.Topic == "") {
		return fmt.Errorf("sources.kafka requires brokers and topic when enabled")
	}
	if c.Sources.Kafka.GroupID == "" {
		c.Sources.Kafka.GroupID = "inidars"
	}

	if c.Alerting.QueueSize <= 0 {
		c.Alerting.QueueSize = 100
	}
	if c.Alerting.MinSeverity == "" {
		c.Alerting.MinSeverity = "LOW"
	}
	if _, err := model.ParseSeverity(c.Alerting.MinSeverity); err != nil {
		return fmt.Errorf("alerting.min_severity: %w", err)
	}
	if c.Alerting.Telegram.MinSeverity == "" {
		c.Alerting.Telegram.MinSeverity = "HIGH"
	}
	if _, err := model.ParseSeverity(c.Alerting.Telegram.MinSeverity); err != nil {
		return fmt.Errorf("alerting.telegram.min_severity: %w", err)
	}
	if c.Alerting.Channels.Telegram && (c.Alerting.Telegram.BotToken == "" || c.Alerting.Telegram.ChatID == "") {
		return fmt.Errorf("alerting.telegram requires bot_token and chat_id when the channel is enabled")
	}
	if c.Alerting.Channels.Kafka && (len(c.Alerting.Kafka.Brokers) == 0 || c.Alerting.Kafka.Topic == "") {
		return fmt.Errorf("alerting.kafka requires brokers and topic when the channel is enabled")
	}
	if c.Alerting.Channels.NATS && c.Alerting.NATS.URL == "" {
		return fmt.Errorf("alerting.nats.url is required when the channel is enabled")
	}
	if c.Alerting.NATS.SubjectPrefix == "" {
		c.Alerting.NATS.SubjectPrefix = "inidars.alerts"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// MinAlertSeverity returns the parsed alerting.min_severity. Call after
// Validate.
func (c *Config) MinAlertSeverity() model.Severity {
	sev, _ := model.ParseSeverity(c.Alerting.MinSeverity)
	return sev
}

// TelegramMinSeverity returns the parsed alerting.telegram.min_severity.
// Call after Validate.
func (c *Config) TelegramMinSeverity() model.Severity {
	sev, _ := model.ParseSeverity(c.Alerting.Telegram.MinSeverity)
	return sev
}

func GetDefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			ListenAddr:             ":5000",
			ShutdownTimeoutSeconds: 10,
			AllowedOrigin:          "*",
		},
		Intake: IntakeConfig{
			QueueSize:             1000,
			Workers:               4,
			BlockedTraffic:        "alert",
			RequestTimeoutSeconds: 5,
		},
		Scoring: ScoringConfig{
			ModelPath:             "models/isolation_forest.json",
			AlertThreshold:        0.6,
			DegradedConfidenceCap: 60,
			SeverityTable:         scoring.DefaultSeverityTable(),
			ConfidenceTable:       scoring.DefaultConfidenceTable(),
		},
		Rules: RulesConfig{
			MaxTrackedIPs: 10000,
		},
		Storage: StorageConfig{
			MaxAlerts: 10000,
		},
		Reputation: ReputationConfig{
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "inidars:blocked:",
			},
		},
		Audit: AuditConfig{
			MaxEntries: 100000,
			Postgres: PostgresConfig{
				QueueSize: 1000,
			},
		},
		Sources: SourcesConfig{
			Hubble: HubbleSourceConfig{
				Server:           "localhost:4245",
				ReconnectSeconds: 5,
			},
			Kafka: KafkaSourceConfig{
				GroupID: "inidars",
			},
		},
		Alerting: AlertingConfig{
			Enabled:     true,
			QueueSize:   100,
			MinSeverity: "LOW",
			Channels: AlertChannelsConfig{
				Log: true,
			},
			Telegram: TelegramConfig{
				MinSeverity: "HIGH",
			},
			NATS: NATSConfig{
				SubjectPrefix: "inidars.alerts",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
		},
	}
}

// SaveConfig writes the config as YAML.
func (c *Config) SaveConfig(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}
