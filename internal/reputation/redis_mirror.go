package reputation

import (
	"context"
	"fmt"
	"time"

	"inidars/internal/metrics"
	"inidars/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisMirrorConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	QueueSize int
}

type mirrorOp struct {
	ip     string
	reason string
	ttl    time.Duration
	delete bool
}

// RedisMirror publishes the block list to Redis so edge proxies can enforce
// it. Each blocked IP is a key whose TTL matches the block expiry.
type RedisMirror struct {
	client  *redis.Client
	prefix  string
	ops     chan mirrorOp
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func NewRedisMirror(cfg RedisMirrorConfig, met *metrics.Metrics, logger *logrus.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "inidars:blocked:"
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}

	logger.Infof("Mirroring block list to Redis at %s", cfg.Addr)
	return &RedisMirror{
		client:  client,
		prefix:  prefix,
		ops:     make(chan mirrorOp, size),
		metrics: met,
		logger:  logger,
	}, nil
}

func (r *RedisMirror) Blocked(entry model.BlockedIP) {
	op := mirrorOp{ip: entry.IP, reason: entry.Reason}
	if entry.ExpiresAt != nil {
		op.ttl = time.Until(*entry.ExpiresAt)
		if op.ttl <= 0 {
			return
		}
	}
	r.enqueue(op)
}

func (r *RedisMirror) Unblocked(ip string) {
	r.enqueue(mirrorOp{ip: ip, delete: true})
}

func (r *RedisMirror) enqueue(op mirrorOp) {
	select {
	case r.ops <- op:
	default:
		r.metrics.SinkErrors.WithLabelValues("redis").Inc()
		r.logger.Warnf("Redis mirror queue full, dropping update for %s", op.ip)
	}
}

// Run applies queued updates until ctx is cancelled, then drains what is
// left with a short deadline.
func (r *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case op := <-r.ops:
			r.apply(ctx, op)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			for {
				select {
				case op := <-r.ops:
					r.apply(drainCtx, op)
				default:
					cancel()
					return
				}
			}
		}
	}
}

func (r *RedisMirror) apply(ctx context.Context, op mirrorOp) {
	key := r.prefix + op.ip
	var err error
	if op.delete {
		err = r.client.Del(ctx, key).Err()
	} else {
		err = r.client.Set(ctx, key, op.reason, op.ttl).Err()
	}
	if err != nil {
		r.metrics.SinkErrors.WithLabelValues("redis").Inc()
		r.logger.WithError(err).WithField("ip", op.ip).Warn("Failed to mirror block list update")
	}
}

func (r *RedisMirror) Close() error {
	return r.client.Close()
}
