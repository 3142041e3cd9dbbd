package investcalc

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
)

// PriceSourceManual marks a price entered by the user.
const PriceSourceManual = "manual"

// ValidatePrice rejects prices that cannot value a holding.
func ValidatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return NewError(ErrCodeValidation, "prices must be non-negative real numbers")
	}
	return nil
}

// SetLatestPrice inserts or updates the latest price of a known stock.
func (c *Core) SetLatestPrice(ctx context.Context, stock string, price float64, source string) error {
	if err := ValidatePrice(price); err != nil {
		return err
	}
	if source == "" {
		source = PriceSourceManual
	}
	st, err := c.GetStock(ctx, stock)
	if err != nil {
		return err
	}

	op := OpPriceUpdate
	if source == PriceSourceManual {
		op = OpManualPrice
	}
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO latest_prices (stock_id, price, source, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(stock_id) DO UPDATE SET
				price = excluded.price,
				source = excluded.source,
				updated_at = CURRENT_TIMESTAMP
		`, st.ID, price, source); err != nil {
			return dbError("update latest price", err)
		}
		return addOperationLogTx(ctx, tx, OperationLog{
			Operation:    op,
			Stock:        stringPtr(st.Name),
			Details:      stringPtr(fmt.Sprintf("source=%s", source)),
			PriceFetched: floatPtr(price),
		})
	})
}

// GetAllLatestPrices returns the latest known prices keyed by lower-cased
// stock name.
func (c *Core) GetAllLatestPrices(ctx context.Context) (map[string]LatestPrice, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.name, p.price, p.source, p.updated_at
		FROM latest_prices p
		JOIN stocks s ON s.id = p.stock_id
	`)
	if err != nil {
		return nil, dbError("query latest prices", err)
	}
	defer rows.Close()

	result := map[string]LatestPrice{}
	for rows.Next() {
		var p LatestPrice
		var updatedAt sql.NullString
		if err := rows.Scan(&p.Stock, &p.Price, &p.Source, &updatedAt); err != nil {
			return nil, dbError("scan latest prices", err)
		}
		p.UpdatedAt = updatedAt.String
		result[strings.ToLower(p.Stock)] = p
	}
	return result, rows.Err()
}

// LogPriceFailure records a failed quote lookup in the operation log.
func (c *Core) LogPriceFailure(ctx context.Context, stock string, err error) {
	if _, logErr := c.AddOperationLog(ctx, OperationLog{
		Operation: OpPriceUpdateFailed,
		Stock:     stringPtr(stock),
		Details:   stringPtr(err.Error()),
	}); logErr != nil {
		c.logger.Warn("operation log failed", "stock", stock, "err", logErr)
	}
}
