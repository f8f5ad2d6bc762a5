package utils

import (
	"inidars/internal/model"
	"inidars/internal/scoring"
)

// Config is the engine configuration file.
type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Intake      IntakeConfig      `yaml:"intake"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Rules       RulesConfig       `yaml:"rules"`
	Storage     StorageConfig     `yaml:"storage"`
	Reputation  ReputationConfig  `yaml:"reputation"`
	Audit       AuditConfig       `yaml:"audit"`
	Sources     SourcesConfig     `yaml:"sources"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ApplicationConfig struct {
	ListenAddr             string `yaml:"listen_addr"`
	MetricsAddr            string `yaml:"metrics_addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	AllowedOrigin          string `yaml:"allowed_origin"`
}

type IntakeConfig struct {
	QueueSize             int    `yaml:"queue_size"`
	Workers               int    `yaml:"workers"`
	BlockedTraffic        string `yaml:"blocked_traffic"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

type ScoringConfig struct {
	ModelPath             string                        `yaml:"model_path"`
	AlertThreshold        float64                       `yaml:"alert_threshold"`
	DegradedConfidenceCap float64                       `yaml:"degraded_confidence_cap"`
	SeverityTable         []scoring.SeverityThreshold   `yaml:"severity_table"`
	ConfidenceTable       []scoring.ConfidenceThreshold `yaml:"confidence_table"`
}

type RulesConfig struct {
	// File is an optional JSON or YAML rule file merged over the builtin set.
	File          string       `yaml:"file"`
	MaxTrackedIPs int          `yaml:"max_tracked_ips"`
	Definitions   []model.Rule `yaml:"definitions"`
}

type StorageConfig struct {
	MaxAlerts int `yaml:"max_alerts"`
}

type ReputationConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type AuditConfig struct {
	// MaxEntries caps the in-memory trail; 0 keeps everything.
	MaxEntries int            `yaml:"max_entries"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Enabled   bool   `yaml:"enabled"`
	DSN       string `yaml:"dsn"`
	QueueSize int    `yaml:"queue_size"`
}

type SourcesConfig struct {
	Hubble HubbleSourceConfig `yaml:"hubble"`
	Kafka  KafkaSourceConfig  `yaml:"kafka"`
}

type HubbleSourceConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Server           string   `yaml:"server"`
	Namespaces       []string `yaml:"namespaces"`
	ReconnectSeconds int      `yaml:"reconnect_seconds"`
}

type KafkaSourceConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type AlertingConfig struct {
	Enabled     bool                `yaml:"enabled"`
	QueueSize   int                 `yaml:"queue_size"`
	MinSeverity string              `yaml:"min_severity"`
	Channels    AlertChannelsConfig `yaml:"channels"`
	Telegram    TelegramConfig      `yaml:"telegram"`
	Kafka       KafkaAlertConfig    `yaml:"kafka"`
	NATS        NATSConfig          `yaml:"nats"`
}

type AlertChannelsConfig struct {
	Log      bool `yaml:"log"`
	Telegram bool `yaml:"telegram"`
	Kafka    bool `yaml:"kafka"`
	NATS     bool `yaml:"nats"`
}

type TelegramConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"`
	ParseMode       string `yaml:"parse_mode"`
	MessageTemplate string `yaml:"message_template,omitempty"`
	MinSeverity     string `yaml:"min_severity"`
}

type KafkaAlertConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
