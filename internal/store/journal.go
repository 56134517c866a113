// Package store provides the SQLite trade journal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"forex-scanner/internal/models"
)

// SQLiteJournal records executed trades and cycle summaries for later review.
// Journal writes are best effort from the orchestrator's perspective; a
// failed insert is logged and trading continues.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return j, nil
}

// initSchema creates the journal tables.
func (j *SQLiteJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		ticket INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		volume REAL NOT NULL,
		price REAL NOT NULL,
		stop_distance REAL NOT NULL,
		target_distance REAL NOT NULL,
		confluence_score INTEGER NOT NULL,
		ml_probability REAL NOT NULL,
		regime TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, timestamp);

	CREATE TABLE IF NOT EXISTS cycles (
		cycle INTEGER PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		scanned INTEGER NOT NULL,
		candidates INTEGER NOT NULL,
		executed INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// RecordTrade inserts an executed trade.
func (j *SQLiteJournal) RecordTrade(ctx context.Context, cand *models.Candidate, ticket int64, volume, price float64) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (id, ticket, timestamp, symbol, direction, volume, price,
			stop_distance, target_distance, confluence_score, ml_probability, regime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cand.ID, ticket, time.Now().UTC(), cand.Symbol, string(cand.Direction), volume, price,
		cand.StopDistance, cand.TakeProfitDistance, cand.ConfluenceScore, cand.MLProbability, string(cand.Regime))
	if err != nil {
		return fmt.Errorf("failed to record trade %s: %w", cand.ID, err)
	}
	return nil
}

// RecordCycle inserts a cycle summary row.
func (j *SQLiteJournal) RecordCycle(ctx context.Context, cycle uint64, scanned, candidates, executed int, elapsed time.Duration) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cycles (cycle, timestamp, scanned, candidates, executed, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cycle, time.Now().UTC(), scanned, candidates, executed, elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record cycle %d: %w", cycle, err)
	}
	return nil
}

// JournaledTrade is a row read back from the trades table.
type JournaledTrade struct {
	ID              string
	Ticket          int64
	Timestamp       time.Time
	Symbol          string
	Direction       string
	Volume          float64
	Price           float64
	ConfluenceScore int
}

// RecentTrades returns the latest n trades, newest first.
func (j *SQLiteJournal) RecentTrades(ctx context.Context, n int) ([]JournaledTrade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, ticket, timestamp, symbol, direction, volume, price, confluence_score
		FROM trades ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []JournaledTrade
	for rows.Next() {
		var t JournaledTrade
		if err := rows.Scan(&t.ID, &t.Ticket, &t.Timestamp, &t.Symbol, &t.Direction, &t.Volume, &t.Price, &t.ConfluenceScore); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
