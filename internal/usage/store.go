// Package usage persists per-request token accounting to SQLite. Writes are
// batched off the request path so recording never blocks a stream.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/util"
	_ "modernc.org/sqlite"
)

// Record is one completed request's accounting row.
type Record struct {
	Model            string
	Endpoint         string
	ReasoningEffort  string
	Streamed         bool
	Failed           bool
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
	RequestedAt      time.Time
}

// Stats is the aggregate view served by the usage endpoint.
type Stats struct {
	Requests         int64 `json:"requests"`
	Failures         int64 `json:"failures"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ModelStats breaks the aggregate down per model.
type ModelStats struct {
	Model       string `json:"model"`
	Requests    int64  `json:"requests"`
	TotalTokens int64  `json:"total_tokens"`
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	defaultRetentionDays = 30
	channelBufferSize    = 1000
)

// Store is the SQLite-backed recorder. A nil *Store is a valid no-op so the
// feature can be switched off by configuration.
type Store struct {
	db            *sql.DB
	records       chan Record
	flushTicker   *time.Ticker
	cleanupTicker *time.Ticker
	stop          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	batchSize     int
	retentionDays int
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS request_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model TEXT NOT NULL,
		endpoint TEXT NOT NULL DEFAULT '',
		reasoning_effort TEXT NOT NULL DEFAULT '',
		streamed BOOLEAN NOT NULL DEFAULT 0,
		failed BOOLEAN NOT NULL DEFAULT 0,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		cached_tokens INTEGER NOT NULL DEFAULT 0,
		requested_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_request_usage_requested_at ON request_usage(requested_at);
	CREATE INDEX IF NOT EXISTS idx_request_usage_model ON request_usage(model);
	`
	_, err := db.Exec(schema)
	return err
}

// Open creates or opens the database at path and prepares the schema.
func Open(path string, retentionDays int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("usage database path is required")
	}
	path = util.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize usage schema: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &Store{
		db:            db,
		records:       make(chan Record, channelBufferSize),
		flushTicker:   time.NewTicker(defaultFlushInterval),
		cleanupTicker: time.NewTicker(24 * time.Hour),
		stop:          make(chan struct{}),
		batchSize:     defaultBatchSize,
		retentionDays: retentionDays,
	}, nil
}

// Start launches the batching writer and the retention cleaner.
func (s *Store) Start() {
	if s == nil {
		return
	}
	s.wg.Add(2)
	go s.writeLoop()
	go s.cleanupLoop()
}

// Close flushes pending rows and shuts the store down.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		s.flushTicker.Stop()
		s.cleanupTicker.Stop()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Add enqueues one record without blocking; when the queue is full the record
// is dropped with a warning.
func (s *Store) Add(r Record) {
	if s == nil {
		return
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now().UTC()
	}
	select {
	case s.records <- r:
	default:
		log.Warnf("usage queue full, dropping record for model %s", r.Model)
	}
}

// GlobalStats aggregates all records since the given time.
func (s *Store) GlobalStats(ctx context.Context, since time.Time) (*Stats, error) {
	if s == nil {
		return &Stats{}, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN failed = 1 THEN 1 ELSE 0 END),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM request_usage
		WHERE requested_at >= ?
	`, since)

	var stats Stats
	var failures sql.NullInt64
	if err := row.Scan(&stats.Requests, &failures, &stats.PromptTokens, &stats.CompletionTokens, &stats.TotalTokens); err != nil {
		return nil, fmt.Errorf("query usage stats: %w", err)
	}
	stats.Failures = failures.Int64
	return &stats, nil
}

// PerModelStats aggregates per model since the given time.
func (s *Store) PerModelStats(ctx context.Context, since time.Time) ([]ModelStats, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			COALESCE(NULLIF(model, ''), 'unknown'),
			COUNT(*),
			COALESCE(SUM(total_tokens), 0)
		FROM request_usage
		WHERE requested_at >= ?
		GROUP BY model
		ORDER BY COUNT(*) DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query model stats: %w", err)
	}
	defer rows.Close()

	var results []ModelStats
	for rows.Next() {
		var ms ModelStats
		if err := rows.Scan(&ms.Model, &ms.Requests, &ms.TotalTokens); err != nil {
			return nil, err
		}
		results = append(results, ms)
	}
	return results, rows.Err()
}

// Flush synchronously drains the queue. Used by tests and shutdown.
func (s *Store) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	batch := make([]Record, 0, s.batchSize)
	for {
		select {
		case r := <-s.records:
			batch = append(batch, r)
			if len(batch) >= s.batchSize {
				if err := s.writeBatch(ctx, batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				return s.writeBatch(ctx, batch)
			}
			return nil
		}
	}
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	batch := make([]Record, 0, s.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.writeBatch(ctx, batch); err != nil {
			log.Errorf("usage batch write failed: %v", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case r := <-s.records:
			batch = append(batch, r)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-s.flushTicker.C:
			flush()
		case <-s.stop:
			for {
				select {
				case r := <-s.records:
					batch = append(batch, r)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *Store) writeBatch(ctx context.Context, batch []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO request_usage (
			model, endpoint, reasoning_effort, streamed, failed,
			prompt_tokens, completion_tokens, total_tokens, cached_tokens,
			requested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx,
			r.Model, r.Endpoint, r.ReasoningEffort, r.Streamed, r.Failed,
			r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.CachedTokens,
			r.RequestedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) cleanupLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.cleanupTicker.C:
			cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			res, err := s.db.ExecContext(ctx, `DELETE FROM request_usage WHERE requested_at < ?`, cutoff)
			cancel()
			if err != nil {
				log.Errorf("usage cleanup failed: %v", err)
				continue
			}
			if n, _ := res.RowsAffected(); n > 0 {
				log.Infof("removed %d usage rows older than %d days", n, s.retentionDays)
			}
		case <-s.stop:
			return
		}
	}
}
