// Package persistence implements the reveal-broadcast-failure cache:
// an append-only JSON-lines file (the source of truth) plus a SQLite
// index that can be rebuilt from that file if missing, so an operator
// can list/inspect past broadcast failures without re-parsing logs.
package persistence

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atomicalminer/atomicalminer/internal/mint"
)

// Record is one failed-reveal cache entry: the reveal transaction that
// could not be broadcast after exhausting the retry policy, plus a
// human-readable debug dump for manual inspection.
type Record struct {
	AttemptID string `json:"attempt_id"`
	TxID      string `json:"txid"`
	RawHex    string `json:"raw_hex"`
	DebugDump string `json:"debug_dump"`
	SavedAt   int64  `json:"saved_at"`
}

// Cache persists Records to an append-only .jsonl file and mirrors them
// into a SQLite index for fast lookup.
type Cache struct {
	mu        sync.Mutex
	jsonlPath string
	db        *sql.DB
}

// New opens (or creates) the reveal cache under dataDir. If the SQLite
// index file is missing, it is rebuilt by re-scanning the .jsonl file.
func New(dataDir string) (*Cache, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	jsonlPath := filepath.Join(dataDir, "failed_reveals.jsonl")
	dbPath := filepath.Join(dataDir, "failed_reveals.db")

	_, statErr := os.Stat(dbPath)
	needsRebuild := os.IsNotExist(statErr)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open reveal cache index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	c := &Cache{jsonlPath: jsonlPath, db: db}

	if needsRebuild {
		if err := c.rebuildIndex(); err != nil {
			db.Close()
			return nil, fmt.Errorf("rebuild reveal cache index: %w", err)
		}
	}

	return c, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS failed_reveals (
			attempt_id TEXT PRIMARY KEY,
			txid       TEXT NOT NULL,
			raw_hex    TEXT NOT NULL,
			debug_dump TEXT NOT NULL,
			saved_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_failed_reveals_txid ON failed_reveals(txid);
	`)
	return err
}

// rebuildIndex replays the .jsonl file into a freshly opened (empty)
// SQLite index. Missing .jsonl file means there is simply nothing to
// rebuild yet.
func (c *Cache) rebuildIndex() error {
	f, err := os.Open(c.jsonlPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if err := c.indexRecord(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (c *Cache) indexRecord(rec Record) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO failed_reveals (attempt_id, txid, raw_hex, debug_dump, saved_at) VALUES (?, ?, ?, ?, ?)`,
		rec.AttemptID, rec.TxID, rec.RawHex, rec.DebugDump, rec.SavedAt,
	)
	return err
}

// SaveFailedReveal implements mint.RevealCache: appends one complete
// JSON line to the cache file, then mirrors it into the SQLite index.
func (c *Cache) SaveFailedReveal(ctx context.Context, attemptID, txid, rawHex, debugDump string) error {
	rec := Record{
		AttemptID: attemptID,
		TxID:      txid,
		RawHex:    rawHex,
		DebugDump: debugDump,
		SavedAt:   time.Now().Unix(),
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reveal cache record: %w", err)
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.jsonlPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open reveal cache file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write reveal cache record: %w", err)
	}

	return c.indexRecord(rec)
}

// ListFailedReveals returns every cached record, most recent first.
func (c *Cache) ListFailedReveals(ctx context.Context) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT attempt_id, txid, raw_hex, debug_dump, saved_at FROM failed_reveals ORDER BY saved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.AttemptID, &rec.TxID, &rec.RawHex, &rec.DebugDump, &rec.SavedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying SQLite connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

var _ mint.RevealCache = (*Cache)(nil)
