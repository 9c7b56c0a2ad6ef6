package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Queue stored in a local SQLite database. It suits single-host
// runs where a Redis server is not available; several processes on the same
// host may share the file.
type SQLite struct {
	db      *sql.DB
	name    string
	closed  atomic.Bool
	writeMu sync.Mutex
}

// NewSQLite opens (or creates) the queue database at dbPath. name selects
// the logical queue inside the file, like a Redis key.
func NewSQLite(dbPath, name string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	q := &SQLite{db: db, name: name}
	if err := q.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return q, nil
}

func (q *SQLite) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS queue_items (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		queue TEXT NOT NULL,
		identifier TEXT NOT NULL,
		enqueued_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_items_queue ON queue_items(queue, seq);
	`

	_, err := q.db.Exec(query)
	return err
}

// Push appends id to the tail
func (q *SQLite) Push(ctx context.Context, id string) error {
	if q.closed.Load() {
		return fmt.Errorf("queue database is closed")
	}

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	return q.retryOnBusy(func() error {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO queue_items (queue, identifier, enqueued_at) VALUES (?, ?, ?)`,
			q.name, id, time.Now().UTC(),
		)
		return err
	})
}

// Pop removes the lowest sequence number in a single statement, so two
// processes can never receive the same row.
func (q *SQLite) Pop(ctx context.Context) (string, bool, error) {
	if q.closed.Load() {
		return "", false, fmt.Errorf("queue database is closed")
	}

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	query := `
	DELETE FROM queue_items
	WHERE seq = (SELECT seq FROM queue_items WHERE queue = ? ORDER BY seq LIMIT 1)
	RETURNING identifier
	`

	var id string
	err := q.retryOnBusy(func() error {
		return q.db.QueryRowContext(ctx, query, q.name).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Len counts the queued identifiers
func (q *SQLite) Len(ctx context.Context) (int64, error) {
	if q.closed.Load() {
		return 0, fmt.Errorf("queue database is closed")
	}

	var n int64
	err := q.retryOnBusy(func() error {
		return q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_items WHERE queue = ?`, q.name).Scan(&n)
	})
	return n, err
}

// retryOnBusy retries the operation if SQLite is busy
func (q *SQLite) retryOnBusy(operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}
		if attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<uint(attempt))
			jitter := time.Duration(attempt*10) * time.Millisecond
			time.Sleep(delay + jitter)
		}
	}

	return err
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// Close closes the database connection
func (q *SQLite) Close() error {
	q.closed.Store(true)
	return q.db.Close()
}
