// Package sink ships flattened trace event rows to ClickHouse in batches.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/fbtools/fbtrace/config"
	"github.com/fbtools/fbtrace/output"
)

const tableDDL = `
CREATE TABLE IF NOT EXISTS %s (
    event_id       Int64,
    timestamp      DateTime64(4),
    kind           LowCardinality(String),
    status         LowCardinality(String),
    attachment_id  Int64,
    transaction_id Int64,
    statement_id   Int64,
    sql_id         Int64,
    run_time_ms    Int64,
    reads          Int64,
    writes         Int64,
    fetches        Int64,
    marks          Int64,
    payload        String
) ENGINE = MergeTree
ORDER BY (timestamp, event_id)`

// Sink accumulates event rows and inserts them in batches, flushing when the
// batch is full, on the configured interval, and on Close.
type Sink struct {
	conn  driver.Conn
	table string
	size  int
	log   *zap.Logger

	mu   sync.Mutex
	rows []output.EventRow

	stop chan struct{}
	wg   sync.WaitGroup
}

// New connects to ClickHouse, creates the target table when missing, and
// starts the interval flusher.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.ClickHouse.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	s := &Sink{
		conn:  conn,
		table: cfg.ClickHouse.Table,
		size:  cfg.Batch.Size,
		log:   log,
		rows:  make([]output.EventRow, 0, cfg.Batch.Size),
		stop:  make(chan struct{}),
	}
	if err := conn.Exec(ctx, fmt.Sprintf(tableDDL, s.table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create table %s: %w", s.table, err)
	}
	s.wg.Add(1)
	go s.flushLoop(time.Duration(cfg.Batch.Interval))
	return s, nil
}

// Add queues one row, flushing if the batch is full.
func (s *Sink) Add(ctx context.Context, row output.EventRow) error {
	s.mu.Lock()
	s.rows = append(s.rows, row)
	full := len(s.rows) >= s.size
	s.mu.Unlock()
	if full {
		return s.Flush(ctx)
	}
	return nil
}

// Flush inserts all queued rows.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	rows := s.rows
	s.rows = make([]output.EventRow, 0, s.size)
	s.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", row.EventID, err)
		}
		err = batch.Append(
			int64(row.EventID),
			row.Timestamp,
			row.Kind,
			row.Status,
			zeroOr(row.AttachmentID),
			zeroOr(row.TransactionID),
			zeroOr(row.StatementID),
			zeroOr(row.SQLID),
			zeroOr(row.RunTime),
			zeroOr(row.Reads),
			zeroOr(row.Writes),
			zeroOr(row.Fetches),
			zeroOr(row.Marks),
			string(payload),
		)
		if err != nil {
			return fmt.Errorf("append event %d: %w", row.EventID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch of %d rows: %w", len(rows), err)
	}
	s.log.Debug("flushed batch", zap.Int("rows", len(rows)))
	return nil
}

// Close flushes the remaining rows and closes the connection.
func (s *Sink) Close(ctx context.Context) error {
	close(s.stop)
	s.wg.Wait()
	err := s.Flush(ctx)
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Sink) flushLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.log.Warn("interval flush failed", zap.Error(err))
			}
		case <-s.stop:
			return
		}
	}
}

func zeroOr(v *int) int64 {
	if v == nil {
		return 0
	}
	return int64(*v)
}
