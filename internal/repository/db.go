package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS statements (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			filename    TEXT NOT NULL,
			issuer      TEXT NOT NULL,
			period      TEXT NOT NULL,
			imported_at TEXT NOT NULL,
			tx_count    INTEGER NOT NULL,
			cutoff_day  INTEGER,
			file_hash   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_statements_period ON statements(period)`,
		`CREATE INDEX IF NOT EXISTS idx_statements_imported_at ON statements(imported_at)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			statement_id INTEGER NOT NULL,
			trans_date   TEXT NOT NULL,
			posting_date TEXT,
			description  TEXT NOT NULL,
			amount       REAL NOT NULL,
			category     TEXT NOT NULL,
			subcategory  TEXT,
			issuer       TEXT NOT NULL,
			FOREIGN KEY (statement_id) REFERENCES statements(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_statement ON transactions(statement_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_date_amount ON transactions(trans_date, amount)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(category)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
