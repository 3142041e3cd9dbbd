package investcalc

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// canonicalOrder sorts flows by day ascending, then share delta descending,
// so a same-day buy always precedes the sell that depends on it. The id
// keeps the order total.
const canonicalOrder = " ORDER BY f.day ASC, f.shares DESC, f.id ASC"

// Record appends one flow, creating the stock when its name is new.
// It does not check the share balance: interactive callers prevent
// overselling before calling it.
func (c *Core) Record(ctx context.Context, req RecordRequest) (int64, error) {
	name := normalizeStock(req.Stock)
	if name == "" {
		return 0, NewError(ErrCodeInvalidInput, "stock required")
	}
	if req.Day.IsZero() {
		req.Day = c.Today()
	}

	var id int64
	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		stockID, _, err := ensureStock(ctx, tx, name)
		if err != nil {
			return err
		}
		id, err = insertFlowTx(ctx, tx, stockID, req.Day, req.Shares, req.Money, req.Comment)
		if err != nil {
			return err
		}
		return addOperationLogTx(ctx, tx, OperationLog{
			Operation:    OpRecord,
			Stock:        stringPtr(name),
			Details:      stringPtr(fmt.Sprintf("%s shares=%s money=%s", req.Day, req.Shares.String(), req.Money.String())),
			RowsAffected: int64Ptr(1),
		})
	})
	if err != nil {
		return 0, dbError("record flow", err)
	}

	c.logger.Info("flow recorded", "id", id, "stock", name, "day", req.Day.String(), "shares", req.Shares.String())
	c.changes.publish(LedgerChange{Kind: ChangeRecord, Stocks: []string{name}, Rows: 1})
	return id, nil
}

// ensureStock returns the id and stored spelling of name, inserting the
// stock when no case-insensitive match exists.
func ensureStock(ctx context.Context, tx *sql.Tx, name string) (int64, string, error) {
	var id int64
	var stored string
	err := tx.QueryRowContext(ctx, "SELECT id, name FROM stocks WHERE name = ?", name).Scan(&id, &stored)
	if err == nil {
		return id, stored, nil
	}
	if err != sql.ErrNoRows {
		return 0, "", err
	}
	result, err := tx.ExecContext(ctx, "INSERT INTO stocks (name) VALUES (?)", name)
	if err != nil {
		return 0, "", err
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, "", err
	}
	return id, name, nil
}

func insertFlowTx(ctx context.Context, tx *sql.Tx, stockID int64, day Day, shares, money Amount, comment *string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO flows (day, stock_id, shares, money, comment)
		VALUES (?, ?, ?, ?, ?)
	`, day, stockID, shares, money, nullString(comment))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetPortfolio returns every stock that ever had a flow with its current
// share balance, sorted by name. Zero balances are included.
func (c *Core) GetPortfolio(ctx context.Context) ([]PortfolioEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.name, f.shares
		FROM stocks s
		LEFT JOIN flows f ON f.stock_id = s.id
		ORDER BY s.name COLLATE NOCASE, s.id
	`)
	if err != nil {
		return nil, dbError("query portfolio", err)
	}
	defer rows.Close()

	var entries []PortfolioEntry
	index := map[string]int{}
	for rows.Next() {
		var name string
		var shares Amount
		if err := rows.Scan(&name, &shares); err != nil {
			return nil, dbError("scan portfolio", err)
		}
		i, ok := index[name]
		if !ok {
			i = len(entries)
			index[name] = i
			entries = append(entries, PortfolioEntry{Stock: name})
		}
		entries[i].TotalShares = entries[i].TotalShares.Plus(shares)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("query portfolio", err)
	}
	return entries, nil
}

// Balance returns the current share balance of stock.
func (c *Core) Balance(ctx context.Context, stock string) (Amount, error) {
	return sumShares(ctx, c.db, "SELECT f.shares FROM flows f JOIN stocks s ON s.id = f.stock_id WHERE s.name = ?", normalizeStock(stock))
}

// BalanceBefore returns the share balance of stock from flows dated
// strictly before day.
func (c *Core) BalanceBefore(ctx context.Context, stock string, day Day) (Amount, error) {
	return balanceBefore(ctx, c.db, normalizeStock(stock), day)
}

func balanceBefore(ctx context.Context, q queryer, stock string, day Day) (Amount, error) {
	return sumShares(ctx, q, `
		SELECT f.shares FROM flows f
		JOIN stocks s ON s.id = f.stock_id
		WHERE s.name = ? AND f.day < ?
	`, stock, day)
}

func sumShares(ctx context.Context, q queryer, query string, args ...any) (Amount, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return Amount{}, dbError("query balance", err)
	}
	defer rows.Close()
	var total Amount
	for rows.Next() {
		var shares Amount
		if err := rows.Scan(&shares); err != nil {
			return Amount{}, dbError("scan balance", err)
		}
		total = total.Plus(shares)
	}
	if err := rows.Err(); err != nil {
		return Amount{}, dbError("query balance", err)
	}
	return total, nil
}

// GetFlows returns the money side of flows. With no stock names it returns
// every flow of every stock pooled together, unfiltered and not netted per
// stock; the pooled return relies on that.
func (c *Core) GetFlows(ctx context.Context, stocks ...string) ([]CashFlow, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT f.money, f.day
		FROM flows f
		JOIN stocks s ON s.id = f.stock_id
	`)
	var params []any
	if len(stocks) > 0 {
		query.WriteString(" WHERE s.name IN (" + placeholders(len(stocks)) + ")")
		params = nameArgs(stocks)
	}
	query.WriteString(canonicalOrder)

	rows, err := c.db.QueryContext(ctx, query.String(), params...)
	if err != nil {
		return nil, dbError("query flows", err)
	}
	defer rows.Close()

	var flows []CashFlow
	for rows.Next() {
		var cf CashFlow
		if err := rows.Scan(&cf.Amount, &cf.Day); err != nil {
			return nil, dbError("scan flows", err)
		}
		flows = append(flows, cf)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("query flows", err)
	}
	return flows, nil
}

// GetHistory returns the flows matching filter in canonical order. Both day
// bounds are inclusive.
func (c *Core) GetHistory(ctx context.Context, filter HistoryFilter) ([]HistoryRow, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, NewError(ErrCodeInvalidInput, fmt.Sprintf("date range is empty: %s > %s", filter.From, filter.To))
	}
	return queryHistory(ctx, c.db, filter)
}

func queryHistory(ctx context.Context, q queryer, filter HistoryFilter) ([]HistoryRow, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT f.id, f.day, s.name, f.shares, f.money, f.comment
		FROM flows f
		JOIN stocks s ON s.id = f.stock_id
		WHERE 1=1
	`)
	var params []any
	if !filter.From.IsZero() {
		query.WriteString(" AND f.day >= ?")
		params = append(params, filter.From)
	}
	if !filter.To.IsZero() {
		query.WriteString(" AND f.day <= ?")
		params = append(params, filter.To)
	}
	if len(filter.Stocks) > 0 {
		query.WriteString(" AND s.name IN (" + placeholders(len(filter.Stocks)) + ")")
		params = append(params, nameArgs(filter.Stocks)...)
	}
	query.WriteString(canonicalOrder)

	rows, err := q.QueryContext(ctx, query.String(), params...)
	if err != nil {
		return nil, dbError("query history", err)
	}
	defer rows.Close()

	var history []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var comment sql.NullString
		if err := rows.Scan(&r.ID, &r.Day, &r.Stock, &r.Shares, &r.Money, &comment); err != nil {
			return nil, dbError("scan history", err)
		}
		if comment.Valid {
			r.Comment = &comment.String
		}
		if !r.Shares.IsZero() {
			r.AvgPrice = Amount{r.Money.Neg().Div(r.Shares.Decimal).Round(4)}
		}
		history = append(history, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("query history", err)
	}
	return history, nil
}

// DeleteFlows removes exactly the given flows in one atomic write. The
// caller must have validated the selection with CheckDeletion.
func (c *Core) DeleteFlows(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, NewError(ErrCodeInvalidInput, "no flows selected")
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	in := "(" + placeholders(len(ids)) + ")"

	var affected int64
	var stocks []string
	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT DISTINCT s.name FROM flows f
			JOIN stocks s ON s.id = f.stock_id
			WHERE f.id IN `+in, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			stocks = append(stocks, name)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM flows WHERE id IN "+in, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return err
		}
		return addOperationLogTx(ctx, tx, OperationLog{
			Operation:    OpDelete,
			Stock:        stringPtr(strings.Join(stocks, ",")),
			Details:      stringPtr(fmt.Sprintf("ids=%v", ids)),
			RowsAffected: int64Ptr(affected),
		})
	})
	if err != nil {
		return 0, dbError("delete flows", err)
	}

	sort.Strings(stocks)
	c.logger.Info("flows deleted", "requested", len(ids), "deleted", affected, "stocks", stocks)
	if affected > 0 {
		c.changes.publish(LedgerChange{Kind: ChangeDelete, Stocks: stocks, Rows: int(affected)})
	}
	return int(affected), nil
}

// DeleteSelection loads the history matching filter, checks that ids form a
// per-stock chronological suffix of it, and deletes them. The upper day
// bound is ignored: flows after it are still retained and must be seen by
// the check.
func (c *Core) DeleteSelection(ctx context.Context, filter HistoryFilter, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, NewError(ErrCodeInvalidInput, "no flows selected")
	}
	filter.To = Day{}
	history, err := c.GetHistory(ctx, filter)
	if err != nil {
		return 0, err
	}
	if err := CheckDeletionIDs(history, ids); err != nil {
		return 0, err
	}
	return c.DeleteFlows(ctx, ids)
}
