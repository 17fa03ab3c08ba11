package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/mca/internal/history"
)

// DefaultTable receives events when Options.Table is empty.
const DefaultTable = "run_history"

type Options struct {
	Addr     string // host:port of the native protocol, default localhost:9000
	Database string
	Username string
	Password string
	Table    string
}

// Sink appends run history rows over the ClickHouse native protocol.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects and pings. The table is not created; call EnsureTable.
func New(ctx context.Context, opts Options) (*Sink, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:9000"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open %s: %w", opts.Addr, err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", opts.Addr, err)
	}
	return &Sink{conn: conn, table: opts.Table}, nil
}

// EnsureTable creates the history table when it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			occurred_at DateTime64(6),
			run_id String,
			type LowCardinality(String),
			worker LowCardinality(String),
			port UInt16,
			pid UInt32,
			status LowCardinality(String),
			error Nullable(String),
			duration_ms Int64
		) ENGINE = MergeTree()
		ORDER BY (run_id, occurred_at)`, s.table))
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	var errText *string
	if e.Error != "" {
		errText = &e.Error
	}
	err := s.conn.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (occurred_at, run_id, type, worker, port, pid, status, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table),
		e.OccurredAt, e.RunID, string(e.Type), e.Worker, uint16(e.Port), uint32(e.PID), e.Status, errText, e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("clickhouse insert %s: %w", e.Type, err)
	}
	return nil
}

// Count returns the number of rows recorded for runID.
func (s *Sink) Count(ctx context.Context, runID string) (int, error) {
	var n uint64
	err := s.conn.QueryRow(ctx, fmt.Sprintf("SELECT count() FROM %s WHERE run_id = ?", s.table), runID).Scan(&n)
	return int(n), err
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
