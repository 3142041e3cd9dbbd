package investcalc

import (
	"database/sql"
	"fmt"
)

func initDatabase(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS stocks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			quote_code TEXT
		)
	`); err != nil {
		return err
	}
	if hasQuoteCode, err := tableHasColumn(tx, "stocks", "quote_code"); err != nil {
		return err
	} else if !hasQuoteCode {
		if err := exec(tx, "ALTER TABLE stocks ADD COLUMN quote_code TEXT"); err != nil {
			return err
		}
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS flows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			stock_id INTEGER NOT NULL,
			shares REAL NOT NULL,
			money REAL NOT NULL,
			comment TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(stock_id) REFERENCES stocks(id) ON UPDATE CASCADE ON DELETE RESTRICT
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS latest_prices (
			stock_id INTEGER PRIMARY KEY,
			price REAL NOT NULL,
			source TEXT NOT NULL DEFAULT 'manual',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(stock_id) REFERENCES stocks(id) ON DELETE CASCADE
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS operation_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operation_type TEXT NOT NULL,
			stock TEXT,
			details TEXT,
			rows_affected INTEGER,
			price_fetched REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_flows_stock_day ON flows(stock_id, day)",
		"CREATE INDEX IF NOT EXISTS idx_flows_day ON flows(day)",
	}
	for _, idx := range indexes {
		if err := exec(tx, idx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func exec(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

func tableExists(tx *sql.Tx, table string) (bool, error) {
	var name string
	err := tx.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func tableHasColumn(tx *sql.Tx, table, column string) (bool, error) {
	exists, err := tableExists(tx, table)
	if err != nil || !exists {
		return false, err
	}
	// PRAGMA does not accept bound parameters; table names here are constants.
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
