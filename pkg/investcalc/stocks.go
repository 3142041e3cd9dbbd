package investcalc

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// GetStock returns the stock named name, ignoring case.
func (c *Core) GetStock(ctx context.Context, name string) (Stock, error) {
	name = normalizeStock(name)
	var s Stock
	var code sql.NullString
	err := c.db.QueryRowContext(ctx, "SELECT id, name, quote_code FROM stocks WHERE name = ?", name).
		Scan(&s.ID, &s.Name, &code)
	if err == sql.ErrNoRows {
		return Stock{}, NewError(ErrCodeNotFound, fmt.Sprintf("stock not found: %s", name))
	}
	if err != nil {
		return Stock{}, dbError("query stock", err)
	}
	if code.Valid {
		s.QuoteCode = &code.String
	}
	return s, nil
}

// GetStocks returns all stocks sorted by name.
func (c *Core) GetStocks(ctx context.Context) ([]Stock, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT id, name, quote_code FROM stocks ORDER BY name COLLATE NOCASE, id")
	if err != nil {
		return nil, dbError("query stocks", err)
	}
	defer rows.Close()

	var stocks []Stock
	for rows.Next() {
		var s Stock
		var code sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &code); err != nil {
			return nil, dbError("scan stocks", err)
		}
		if code.Valid {
			s.QuoteCode = &code.String
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// SetQuoteCode stores the "provider symbol" code used to fetch the price of
// stock. An empty code clears it.
func (c *Core) SetQuoteCode(ctx context.Context, stock, code string) error {
	st, err := c.GetStock(ctx, stock)
	if err != nil {
		return err
	}
	code = strings.Join(strings.Fields(code), " ")
	var value *string
	if code != "" {
		value = &code
	}
	err = c.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE stocks SET quote_code = ? WHERE id = ?", nullString(value), st.ID); err != nil {
			return err
		}
		return addOperationLogTx(ctx, tx, OperationLog{
			Operation: OpQuoteCode,
			Stock:     stringPtr(st.Name),
			Details:   stringPtr(code),
		})
	})
	if err != nil {
		return dbError("update quote code", err)
	}
	c.logger.Info("quote code updated", "stock", st.Name, "code", code)
	return nil
}
