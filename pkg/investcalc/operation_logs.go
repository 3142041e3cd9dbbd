package investcalc

import (
	"context"
	"database/sql"
)

// AddOperationLog adds a new operation log entry.
func (c *Core) AddOperationLog(ctx context.Context, log OperationLog) (int64, error) {
	result, err := c.db.ExecContext(ctx, insertOperationLog,
		log.Operation, log.Stock, log.Details, log.RowsAffected, log.PriceFetched)
	if err != nil {
		return 0, dbError("add operation log", err)
	}
	return result.LastInsertId()
}

const insertOperationLog = `
	INSERT INTO operation_logs (operation_type, stock, details, rows_affected, price_fetched)
	VALUES (?, ?, ?, ?, ?)
`

func addOperationLogTx(ctx context.Context, tx *sql.Tx, log OperationLog) error {
	_, err := tx.ExecContext(ctx, insertOperationLog,
		log.Operation, log.Stock, log.Details, log.RowsAffected, log.PriceFetched)
	return err
}

// GetOperationLogs returns recent operation logs, newest first.
func (c *Core) GetOperationLogs(ctx context.Context, limit, offset int) ([]OperationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, operation_type, stock, details, rows_affected, price_fetched, created_at FROM operation_logs ORDER BY id DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, dbError("query operation logs", err)
	}
	defer rows.Close()

	var logs []OperationLog
	for rows.Next() {
		var log OperationLog
		var stock, details, createdAt sql.NullString
		var rowsAffected sql.NullInt64
		var priceFetched sql.NullFloat64
		if err := rows.Scan(&log.ID, &log.Operation, &stock, &details, &rowsAffected, &priceFetched, &createdAt); err != nil {
			return nil, dbError("scan operation logs", err)
		}
		if stock.Valid {
			log.Stock = &stock.String
		}
		if details.Valid {
			log.Details = &details.String
		}
		if rowsAffected.Valid {
			log.RowsAffected = &rowsAffected.Int64
		}
		if priceFetched.Valid {
			log.PriceFetched = &priceFetched.Float64
		}
		if createdAt.Valid {
			log.CreatedAt = &createdAt.String
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
