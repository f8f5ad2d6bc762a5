// Package engine wires the detection-and-response components together and
// owns their background goroutines.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"inidars/internal/alert"
	"inidars/internal/audit"
	"inidars/internal/intake"
	"inidars/internal/investigation"
	"inidars/internal/metrics"
	"inidars/internal/model"
	"inidars/internal/reputation"
	"inidars/internal/rules"
	"inidars/internal/rules/builtin"
	"inidars/internal/scoring"
	"inidars/internal/source"
	"inidars/internal/stats"
	"inidars/internal/storage"
	"inidars/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Engine struct {
	Config   *utils.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Audit        *audit.Log
	Alerts       *storage.AlertStore
	Reputation   *reputation.Manager
	Rules        *rules.Engine
	Scorer       *scoring.Scorer
	Intake       *intake.Intake
	Investigator *investigation.Investigator
	Stats        *stats.Aggregator
	Dispatcher   *alert.Dispatcher

	runners []func(ctx context.Context)
	closers []io.Closer
}

// New builds an engine from cfg. External systems enabled in cfg are
// connected here; a failure to reach one is returned as an error.
func New(ctx context.Context, cfg *utils.Config, logger *logrus.Logger) (*Engine, error) {
	registry := metrics.NewRegistry()
	e := &Engine{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  metrics.NewMetrics(registry),
	}

	e.Audit = audit.NewLog(e.Metrics, logger)
	e.Audit.SetMaxEntries(cfg.Audit.MaxEntries)
	if err := e.setupAuditSink(ctx); err != nil {
		e.Close()
		return nil, err
	}

	e.Alerts = storage.NewAlertStore(cfg.Storage.MaxAlerts, e.Audit, e.Metrics, logger)

	e.Reputation = reputation.NewManager(e.Alerts, e.Audit, e.Metrics, logger)
	if err := e.setupRedisMirror(); err != nil {
		e.Close()
		return nil, err
	}

	if err := e.setupScoring(); err != nil {
		e.Close()
		return nil, err
	}

	e.Intake = intake.NewIntake(intake.Config{
		QueueSize:      cfg.Intake.QueueSize,
		Workers:        cfg.Intake.Workers,
		BlockedTraffic: intake.BlockedTrafficMode(cfg.Intake.BlockedTraffic),
	}, e.Scorer, e.Alerts, e.Reputation, e.Metrics, logger)
	e.runners = append(e.runners, e.Intake.Run)

	if err := e.setupAlerting(); err != nil {
		e.Close()
		return nil, err
	}

	if err := e.setupSources(); err != nil {
		e.Close()
		return nil, err
	}

	if cfg.Application.MetricsAddr != "" {
		exporter := metrics.NewExporter(cfg.Application.MetricsAddr, registry, logger)
		e.runners = append(e.runners, func(ctx context.Context) {
			if err := exporter.Start(ctx); err != nil {
				logger.Errorf("Metrics exporter failed: %v", err)
			}
		})
	}

	e.Investigator = investigation.NewInvestigator(e.Alerts, e.Reputation, e.Audit)
	e.Stats = stats.NewAggregator(e.Alerts, e.Reputation, e.Intake)

	return e, nil
}

func (e *Engine) setupAuditSink(ctx context.Context) error {
	pg := e.Config.Audit.Postgres
	if !pg.Enabled {
		return nil
	}

	sink, err := audit.NewPostgresSink(pg.DSN, pg.QueueSize, e.Metrics, e.Logger)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, sink)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sink.InitSchema(initCtx); err != nil {
		return err
	}
	history, err := sink.Load(initCtx, e.Config.Audit.MaxEntries)
	if err != nil {
		return err
	}
	e.Audit.Restore(history)
	e.Logger.Infof("Restored %d actions from PostgreSQL", len(history))

	e.Audit.AddSink(sink)
	e.runners = append(e.runners, sink.Run)
	return nil
}

func (e *Engine) setupRedisMirror() error {
	rc := e.Config.Reputation.Redis
	if !rc.Enabled {
		return nil
	}

	mirror, err := reputation.NewRedisMirror(reputation.RedisMirrorConfig{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		KeyPrefix: rc.KeyPrefix,
	}, e.Metrics, e.Logger)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, mirror)
	e.Reputation.AddMirror(mirror)
	e.runners = append(e.runners, mirror.Run)
	return nil
}

func (e *Engine) setupScoring() error {
	cfg := e.Config

	ruleCfgs := cfg.Rules.Definitions
	if cfg.Rules.File != "" {
		fileRules, err := rules.LoadRules(cfg.Rules.File)
		if err != nil {
			return fmt.Errorf("failed to load rules: %w", err)
		}
		ruleCfgs = rules.Merge(fileRules, cfg.Rules.Definitions)
	}

	e.Rules = rules.NewEngine(e.Logger)
	n := builtin.RegisterBuiltinRules(e.Rules, ruleCfgs, cfg.Rules.MaxTrackedIPs, e.Logger)
	e.Logger.Infof("Registered %d detection rules", n)

	m, err := scoring.LoadModel(cfg.Scoring.ModelPath)
	if err != nil {
		e.Logger.Warnf("Anomaly model unavailable, scoring with rules only: %v", err)
	} else {
		info := m.Info()
		e.Logger.Infof("Loaded %s anomaly model (%s mode, %d features)", info.Type, info.Mode, info.Features)
	}

	thresholds, err := scoring.NewThresholds(cfg.Scoring.SeverityTable, cfg.Scoring.ConfidenceTable)
	if err != nil {
		return fmt.Errorf("invalid scoring tables: %w", err)
	}

	e.Scorer = scoring.NewScorer(m, e.Rules, thresholds, scoring.Options{
		AlertThreshold:        cfg.Scoring.AlertThreshold,
		DegradedConfidenceCap: cfg.Scoring.DegradedConfidenceCap,
	}, e.Metrics, e.Logger)
	return nil
}

func (e *Engine) setupAlerting() error {
	ac := e.Config.Alerting
	if !ac.Enabled {
		return nil
	}

	e.Dispatcher = alert.NewDispatcher(ac.QueueSize, e.Metrics, e.Logger)
	minSeverity := e.Config.MinAlertSeverity()

	if ac.Channels.Log {
		e.Dispatcher.AddNotifier(alert.NewLogAlertNotifier(e.Logger), minSeverity)
	}
	if ac.Channels.Telegram {
		tn := alert.NewTelegramNotifier(alert.TelegramConfig{
			BotToken:        ac.Telegram.BotToken,
			ChatID:          ac.Telegram.ChatID,
			ParseMode:       ac.Telegram.ParseMode,
			MessageTemplate: ac.Telegram.MessageTemplate,
		}, e.Logger)
		e.Dispatcher.AddNotifier(tn, minSeverity.Max(e.Config.TelegramMinSeverity()))
	}
	if ac.Channels.Kafka {
		kn, err := alert.NewKafkaNotifier(alert.KafkaConfig{
			Brokers: ac.Kafka.Brokers,
			Topic:   ac.Kafka.Topic,
		}, e.Logger)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, kn)
		e.Dispatcher.AddNotifier(kn, minSeverity)
	}
	if ac.Channels.NATS {
		nn, err := alert.NewNATSNotifier(alert.NATSConfig{
			URL:           ac.NATS.URL,
			SubjectPrefix: ac.NATS.SubjectPrefix,
		}, e.Logger)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, nn)
		e.Dispatcher.AddNotifier(nn, minSeverity)
	}

	e.Intake.AddPublisher(e.Dispatcher)
	e.runners = append(e.runners, e.Dispatcher.Run)
	return nil
}

func (e *Engine) setupSources() error {
	sc := e.Config.Sources

	if sc.Hubble.Enabled {
		hs, err := source.NewHubbleSource(source.HubbleConfig{
			Server:         sc.Hubble.Server,
			Namespaces:     sc.Hubble.Namespaces,
			ReconnectDelay: time.Duration(sc.Hubble.ReconnectSeconds) * time.Second,
		}, e.Intake, e.Logger)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, hs)
		e.runners = append(e.runners, hs.Run)
	}

	if sc.Kafka.Enabled {
		ks, err := source.NewKafkaSource(source.KafkaConfig{
			Brokers: sc.Kafka.Brokers,
			Topic:   sc.Kafka.Topic,
			GroupID: sc.Kafka.GroupID,
		}, e.Intake, e.Logger)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, ks)
		e.runners = append(e.runners, ks.Run)
	}
	return nil
}

// Run starts every background component and blocks until ctx is cancelled
// and all of them have returned.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, run := range e.runners {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
	wg.Wait()
}

// ModelInfo describes the anomaly model in use.
func (e *Engine) ModelInfo() model.ModelInfo {
	return e.Scorer.ModelInfo()
}

// Close releases external connections. Call after Run has returned.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
