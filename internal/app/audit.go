package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"ridehail/internal/audit"
	"ridehail/internal/config"
)

// recentAuditCapacity is the in-process audit history kept when no audit
// database is configured.
const recentAuditCapacity = 1000

// AuditStack is the set of audit sinks built from config.
type AuditStack struct {
	Recorder *audit.Recorder
	Lister   audit.Lister
	Postgres *audit.PostgresSink // nil unless an audit database is configured

	pool *pgxpool.Pool
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAuditStack builds the recorder. The log sink is always on; RabbitMQ and
// Postgres sinks are added when their URLs are set. Recent events are read
// back from Postgres when available, otherwise from an in-memory ring.
func NewAuditStack(ctx context.Context, cfg config.AuditConfig, log *zap.Logger) (*AuditStack, error) {
	s := &AuditStack{}
	sinks := []audit.Sink{audit.NewLogSink(log)}

	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, eris.Wrap(err, "app: dial amqp")
		}
		s.conn = conn
		ch, err := conn.Channel()
		if err != nil {
			s.Close()
			return nil, eris.Wrap(err, "app: open amqp channel")
		}
		s.ch = ch
		if err := audit.DeclareExchange(ch); err != nil {
			s.Close()
			return nil, err
		}
		sinks = append(sinks, audit.NewAMQPSink(ch, cfg.PublishTimeout))
		log.Info("audit events published to amqp", zap.String("exchange", audit.Exchange))
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			s.Close()
			return nil, eris.Wrap(err, "app: open audit pool")
		}
		s.pool = pool
		if err := pool.Ping(ctx); err != nil {
			s.Close()
			return nil, eris.Wrap(err, "app: ping audit database")
		}
		s.Postgres = audit.NewPostgresSink(pool, cfg.BatchSize, cfg.BufferSize, log)
		s.Lister = s.Postgres
		sinks = append(sinks, s.Postgres)
		log.Info("audit events stored in postgres", zap.Int("batch_size", cfg.BatchSize))
	}

	if s.Lister == nil {
		ring := audit.NewMemorySink(recentAuditCapacity)
		s.Lister = ring
		sinks = append(sinks, ring)
	}

	s.Recorder = audit.NewRecorder(log, sinks...)
	return s, nil
}

// Close releases the broker connection and the audit pool.
func (s *AuditStack) Close() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
