package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"inidars/internal/metrics"
	"inidars/internal/model"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS action_log (
	id BIGINT PRIMARY KEY,
	action TEXT NOT NULL,
	target TEXT NOT NULL,
	target_type TEXT NOT NULL,
	actor TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_log_target ON action_log (target);
`

// PostgresSink persists actions to PostgreSQL from a background goroutine.
// Rows are only ever inserted.
type PostgresSink struct {
	db      *sql.DB
	queue   chan model.Action
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func NewPostgresSink(dsn string, queueSize int, met *metrics.Metrics, logger *logrus.Logger) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach audit database: %w", err)
	}

	if queueSize <= 0 {
		queueSize = 1024
	}

	return &PostgresSink{
		db:      db,
		queue:   make(chan model.Action, queueSize),
		metrics: met,
		logger:  logger,
	}, nil
}

func (s *PostgresSink) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create audit schema: %v", model.ErrStorageFailure, err)
	}
	return nil
}

// Enqueue hands the action to the writer goroutine. When the queue is full
// the action stays in memory only and the drop is counted.
func (s *PostgresSink) Enqueue(action model.Action) {
	select {
	case s.queue <- action:
	default:
		s.metrics.SinkErrors.WithLabelValues("postgres").Inc()
		s.logger.Errorf("Audit sink queue is full, action %d not persisted", action.ID)
	}
}

// Run writes queued actions until ctx is cancelled, then drains what is left.
func (s *PostgresSink) Run(ctx context.Context) {
	for {
		select {
		case action := <-s.queue:
			s.persist(ctx, action)
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

func (s *PostgresSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case action := <-s.queue:
			s.persist(ctx, action)
		default:
			return
		}
	}
}

func (s *PostgresSink) persist(ctx context.Context, action model.Action) {
	if err := s.write(ctx, action); err != nil {
		s.metrics.SinkErrors.WithLabelValues("postgres").Inc()
		s.logger.Errorf("Failed to persist action %d: %v", action.ID, err)
	}
}

func (s *PostgresSink) write(ctx context.Context, action model.Action) error {
	var metadata []byte
	if len(action.Metadata) > 0 {
		metadata, _ = json.Marshal(action.Metadata)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_log (id, action, target, target_type, actor, details, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		action.ID, string(action.Kind), action.Target, action.TargetType,
		action.Actor, action.Details, nullableJSON(metadata), action.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: insert action: %v", model.ErrStorageFailure, err)
	}
	return nil
}

// Load returns the newest limit persisted actions in id order. limit <= 0
// loads everything.
func (s *PostgresSink) Load(ctx context.Context, limit int) ([]model.Action, error) {
	query := `SELECT id, action, target, target_type, actor, details, metadata, created_at
		 FROM (SELECT * FROM action_log ORDER BY id DESC LIMIT $1) recent ORDER BY id`
	var bound interface{}
	if limit > 0 {
		bound = limit
	}
	rows, err := s.db.QueryContext(ctx, query, bound)
	if err != nil {
		return nil, fmt.Errorf("%w: load actions: %v", model.ErrStorageFailure, err)
	}
	defer rows.Close()

	var actions []model.Action
	for rows.Next() {
		var (
			a        model.Action
			kind     string
			metadata []byte
		)
		if err := rows.Scan(&a.ID, &kind, &a.Target, &a.TargetType, &a.Actor, &a.Details, &metadata, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if a.Kind, err = model.ParseActionKind(kind); err != nil {
			s.logger.Warnf("Skipping persisted action %d: %v", a.ID, err)
			continue
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				s.logger.Warnf("Ignoring malformed metadata on action %d: %v", a.ID, err)
			}
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
