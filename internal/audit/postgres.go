package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Pool is the subset of *pgxpool.Pool the Postgres sink uses.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var auditColumns = []string{"actor", "action", "details", "occurred_at"}

// PostgresSink buffers events and writes them to audit_events with COPY.
// Record never touches the database; Run does all the writing.
type PostgresSink struct {
	pool       Pool
	batchSize  int
	bufferSize int
	log        *zap.Logger
	full       chan struct{}

	mu      sync.Mutex
	buf     []Event
	dropped int
}

// NewPostgresSink creates a PostgresSink. Run flushes once batchSize events
// are waiting; at most bufferSize are held, the oldest dropped beyond that.
func NewPostgresSink(pool Pool, batchSize, bufferSize int, log *zap.Logger) *PostgresSink {
	if batchSize <= 0 {
		batchSize = 100
	}
	if bufferSize < batchSize {
		bufferSize = batchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresSink{
		pool:       pool,
		batchSize:  batchSize,
		bufferSize: bufferSize,
		log:        log,
		full:       make(chan struct{}, 1),
	}
}

// Record buffers e and wakes Run once a batch is ready. It does not block.
func (s *PostgresSink) Record(_ context.Context, e Event) error {
	s.mu.Lock()
	if len(s.buf) >= s.bufferSize {
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, e)
	ready := len(s.buf) >= s.batchSize
	s.mu.Unlock()

	if ready {
		select {
		case s.full <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of buffered events.
func (s *PostgresSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Flush writes buffered events. A failed batch is dropped.
func (s *PostgresSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.buf
	dropped := s.dropped
	s.buf = nil
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.log.Warn("audit: buffer overflow, events dropped", zap.Int("dropped", dropped))
	}
	if len(batch) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, []any{e.Actor, string(e.Action), e.Details, e.At})
	}

	if _, err := s.pool.CopyFrom(ctx, pgx.Identifier{"audit_events"}, auditColumns, pgx.CopyFromRows(rows)); err != nil {
		return eris.Wrapf(err, "audit: copy %d events", len(rows))
	}
	return nil
}

// Run flushes on every tick and whenever a batch fills, until ctx is done,
// then flushes once more.
func (s *PostgresSink) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Flush(flushCtx); err != nil {
				s.log.Warn("audit: final flush failed", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			s.flushLogged(ctx)
		case <-s.full:
			s.flushLogged(ctx)
		}
	}
}

func (s *PostgresSink) flushLogged(ctx context.Context) {
	if err := s.Flush(ctx); err != nil {
		s.log.Warn("audit: flush failed", zap.Error(err))
	}
}

// Recent returns up to limit stored events, newest first.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT actor, action, details, occurred_at
		FROM audit_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "audit: query recent")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var action string
		if err := rows.Scan(&e.Actor, &action, &e.Details, &e.At); err != nil {
			return nil, eris.Wrap(err, "audit: scan event")
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "audit: iterate events")
}
