package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	// SQLite driver, referenced only through the connection string.
	_ "github.com/mattn/go-sqlite3"

	"voicebridge/internal/config"
)

// Journal is the durable local record behind the join-on-accept
// de-duplication set and the session history. Keeping it on disk means a
// process restart during the accept/join race cannot replay a navigation,
// which an in-memory (or session-storage) set cannot guarantee.
type Journal struct {
	db           *sql.DB
	timeout      time.Duration
	writeChannel chan writeOperation // single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed
}

// writeOperation is one queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Open opens (and bootstraps) the journal database.
func Open(cfg *config.JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// One writer, a handful of concurrent readers.
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(cfg.Timeout)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply journal pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap journal schema: %w", err)
	}

	j := &Journal{
		db:           db,
		timeout:      cfg.Timeout,
		writeChannel: make(chan writeOperation, 64),
		shutdown:     make(chan struct{}),
	}

	// Single-writer goroutine avoids SQLite write contention.
	j.wg.Add(1)
	go j.writeLoop()

	return j, nil
}

// writeLoop processes all write operations in a single goroutine, with
// one retry after a short delay for transient lock errors.
func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case op := <-j.writeChannel:
			err := op.operation(j.db)
			if err != nil {
				log.Printf("Journal write failed, retrying: %v", err)
				time.Sleep(250 * time.Millisecond)
				err = op.operation(j.db)
				if err != nil {
					log.Printf("Journal write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-j.shutdown:
			return
		}
	}
}

// executeWrite queues a write and waits for completion.
func (j *Journal) executeWrite(operation func(*sql.DB) error) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrClosed
	}
	j.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case j.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(j.timeout):
		return ErrWriteTimeout
	case <-j.shutdown:
		return ErrClosed
	}
}

// MarkJoined records that navigation for the request has been triggered.
// INSERT OR IGNORE keeps repeated marks idempotent.
func (j *Journal) MarkJoined(ctx context.Context, requestID, roomID string) error {
	if requestID == "" {
		return ErrEmptyRequestID
	}
	if roomID == "" {
		return ErrEmptyRoomID
	}

	return j.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT OR IGNORE INTO joined_requests (request_id, room_id, joined_at)
			VALUES (?, ?, ?)
		`
		if _, err := db.ExecContext(ctx, query, requestID, roomID, time.Now()); err != nil {
			return fmt.Errorf("failed to record joined request: %w", err)
		}
		return nil
	})
}

// HasJoined reports whether navigation for the request was already
// triggered, by this process or a previous one.
func (j *Journal) HasJoined(ctx context.Context, requestID string) (bool, error) {
	if requestID == "" {
		return false, ErrEmptyRequestID
	}

	var count int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM joined_requests WHERE request_id = ?",
		requestID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query joined requests: %w", err)
	}
	return count > 0, nil
}

// RecordSession opens a session history entry and returns its id.
func (j *Journal) RecordSession(ctx context.Context, roomID, role string, joinedAt time.Time) (string, error) {
	if roomID == "" {
		return "", ErrEmptyRoomID
	}

	entryID := uuid.New().String()
	err := j.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO session_log (id, room_id, role, joined_at)
			VALUES (?, ?, ?, ?)
		`
		if _, err := db.ExecContext(ctx, query, entryID, roomID, role, joinedAt); err != nil {
			return fmt.Errorf("failed to record session: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return entryID, nil
}

// CloseSession stamps the leave time on a history entry.
func (j *Journal) CloseSession(ctx context.Context, entryID string, leftAt time.Time) error {
	return j.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE session_log SET left_at = ? WHERE id = ?",
			leftAt, entryID,
		)
		if err != nil {
			return fmt.Errorf("failed to close session entry: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check session entry update: %w", err)
		}
		if affected == 0 {
			return ErrEntryNotFound
		}
		return nil
	})
}

// Prune removes journal rows older than the cutoff. The backend expires
// stale requests after one hour, so rows past that can never race again.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int, error) {
	var removed int64
	err := j.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"DELETE FROM joined_requests WHERE joined_at < ?",
			before,
		)
		if err != nil {
			return fmt.Errorf("failed to prune joined requests: %w", err)
		}
		removed, _ = res.RowsAffected()

		if _, err := db.ExecContext(ctx,
			"DELETE FROM session_log WHERE left_at IS NOT NULL AND left_at < ?",
			before,
		); err != nil {
			return fmt.Errorf("failed to prune session log: %w", err)
		}
		return nil
	})
	return int(removed), err
}

// Close shuts down the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	close(j.shutdown)
	j.wg.Wait()

	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal database: %w", err)
	}
	return nil
}

// applyPragmas applies SQLite settings sized for a single-user client
// store.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// ensureSchema creates the journal tables when absent. Two tables only;
// a migration framework would outweigh the store.
func ensureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS joined_requests (
			request_id TEXT PRIMARY KEY,
			room_id    TEXT NOT NULL,
			joined_at  DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_log (
			id        TEXT PRIMARY KEY,
			room_id   TEXT NOT NULL,
			role      TEXT NOT NULL,
			joined_at DATETIME NOT NULL,
			left_at   DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_joined_requests_joined_at ON joined_requests(joined_at)`,
		`CREATE INDEX IF NOT EXISTS idx_session_log_room ON session_log(room_id)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}
