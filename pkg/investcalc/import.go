package investcalc

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// DefaultDelimiter separates fields of import and export lines.
const DefaultDelimiter = "\t"

// minImportColumns is day, stock, shares and money; the comment is optional.
const minImportColumns = 4

// ImportRow is one parsed line of a bulk import.
type ImportRow struct {
	Line    int
	Day     Day
	Stock   string
	Shares  Amount
	Money   Amount
	Comment *string
}

// ParseBatch parses import text. Blank lines are skipped and empty fields
// are dropped, so several delimiters in a row are allowed. The first
// malformed line aborts parsing with a *ParseError.
func ParseBatch(text, delimiter string) ([]ImportRow, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	var rows []ImportRow
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lineNo := i + 1

		var fields []string
		for _, f := range strings.Split(line, delimiter) {
			if f != "" {
				fields = append(fields, f)
			}
		}
		if len(fields) < minImportColumns {
			return nil, &ParseError{Line: lineNo, Text: line, Field: "columns"}
		}

		dayText := strings.TrimSpace(fields[0])
		day, err := ParseDay(dayText)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: line, Field: "date", Value: dayText}
		}
		stock := normalizeStock(fields[1])
		if stock == "" {
			return nil, &ParseError{Line: lineNo, Text: line, Field: "stock", Value: fields[1]}
		}
		sharesText := strings.TrimSpace(fields[2])
		shares, err := ParseAmount(sharesText)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: line, Field: "number", Value: sharesText}
		}
		moneyText := strings.TrimSpace(fields[3])
		money, err := ParseAmount(moneyText)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: line, Field: "number", Value: moneyText}
		}

		row := ImportRow{Line: lineNo, Day: day, Stock: stock, Shares: shares, Money: money}
		if len(fields) > minImportColumns {
			if comment := strings.TrimSpace(fields[minImportColumns]); comment != "" {
				row.Comment = &comment
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// importGroup holds the rows of one stock, sorted in canonical order.
type importGroup struct {
	stock string
	rows  []ImportRow
}

// groupImportRows groups rows by stock name, ignoring case, and sorts each
// group by day ascending then shares descending. Input order only decides
// the spelling of a new stock.
func groupImportRows(rows []ImportRow) []*importGroup {
	byKey := map[string]*importGroup{}
	var groups []*importGroup
	for _, r := range rows {
		key := strings.ToLower(r.Stock)
		g, ok := byKey[key]
		if !ok {
			g = &importGroup{stock: r.Stock}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}
	for _, g := range groups {
		sort.SliceStable(g.rows, func(i, j int) bool {
			return canonicalLess(g.rows[i].Day, g.rows[i].Shares, g.rows[j].Day, g.rows[j].Shares)
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		return strings.ToLower(groups[i].stock) < strings.ToLower(groups[j].stock)
	})
	return groups
}

// canonicalLess orders by day ascending, then shares descending.
func canonicalLess(dayA Day, sharesA Amount, dayB Day, sharesB Amount) bool {
	if !dayA.Equal(dayB) {
		return dayA.Before(dayB)
	}
	return sharesA.GreaterThan(sharesB.Decimal)
}

// replayStep is one flow of a stock's history during import validation.
type replayStep struct {
	day    Day
	shares Amount
}

// ImportBatch parses text and commits every row in one transaction, or none.
// Each stock's rows are replayed in canonical order on top of its balance
// before the earliest imported day, merged with the stock's existing flows
// from that day on; the first negative running balance rejects the batch
// with a *BalanceViolationError.
func (c *Core) ImportBatch(ctx context.Context, text, delimiter string) (int, error) {
	rows, err := ParseBatch(text, delimiter)
	if err != nil {
		c.logger.Warn("import rejected", "err", err)
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	groups := groupImportRows(rows)

	var stocks []string
	err = c.WithTx(ctx, func(tx *sql.Tx) error {
		for _, g := range groups {
			if err := validateImportGroup(ctx, tx, g); err != nil {
				return err
			}
		}
		for _, g := range groups {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO stocks (name) VALUES (?)", g.stock); err != nil {
				return err
			}
			stockID, stored, err := ensureStock(ctx, tx, g.stock)
			if err != nil {
				return err
			}
			stocks = append(stocks, stored)
			for _, r := range g.rows {
				if _, err := insertFlowTx(ctx, tx, stockID, r.Day, r.Shares, r.Money, r.Comment); err != nil {
					return err
				}
			}
		}
		return addOperationLogTx(ctx, tx, OperationLog{
			Operation:    OpImport,
			Stock:        stringPtr(strings.Join(stocks, ",")),
			Details:      stringPtr(fmt.Sprintf("%d rows, %d stocks", len(rows), len(groups))),
			RowsAffected: int64Ptr(int64(len(rows))),
		})
	})
	if err != nil {
		c.logger.Warn("import rejected", "rows", len(rows), "err", err)
		return 0, dbError("import flows", err)
	}

	c.logger.Info("import committed", "rows", len(rows), "stocks", stocks)
	c.changes.publish(LedgerChange{Kind: ChangeImport, Stocks: stocks, Rows: len(rows)})
	return len(rows), nil
}

// validateImportGroup dry-runs one stock's imported rows against the
// ledger inside tx.
func validateImportGroup(ctx context.Context, tx *sql.Tx, g *importGroup) error {
	earliest := g.rows[0].Day
	var stored string
	err := tx.QueryRowContext(ctx, "SELECT name FROM stocks WHERE name = ?", g.stock).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		// New stock: nothing recorded before the batch.
	case err != nil:
		return err
	default:
		g.stock = stored
	}

	added := make([]replayStep, 0, len(g.rows))
	for _, r := range g.rows {
		added = append(added, replayStep{day: r.Day, shares: r.Shares})
	}
	return replayStock(ctx, tx, g.stock, earliest, added)
}

// replayStock replays added on top of stock's history from the day from on,
// in canonical order, starting at the balance before from. The first
// negative running balance is returned as a *BalanceViolationError.
func replayStock(ctx context.Context, q queryer, stock string, from Day, added []replayStep) error {
	balance, err := balanceBefore(ctx, q, stock, from)
	if err != nil {
		return err
	}
	steps, err := existingSteps(ctx, q, stock, from)
	if err != nil {
		return dbError("query flows", err)
	}
	steps = append(steps, added...)
	// Existing flows come first on ties, as their lower ids would place them.
	sort.SliceStable(steps, func(i, j int) bool {
		return canonicalLess(steps[i].day, steps[i].shares, steps[j].day, steps[j].shares)
	})

	for _, s := range steps {
		next := balance.Plus(s.shares)
		if next.IsNegative() {
			return &BalanceViolationError{
				Stock:     stock,
				Day:       s.day,
				Requested: s.shares.Negated(),
				Available: balance,
			}
		}
		balance = next
	}
	return nil
}

func existingSteps(ctx context.Context, q queryer, stock string, from Day) ([]replayStep, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT f.day, f.shares FROM flows f
		JOIN stocks s ON s.id = f.stock_id
		WHERE s.name = ? AND f.day >= ?`+canonicalOrder, stock, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var steps []replayStep
	for rows.Next() {
		var s replayStep
		if err := rows.Scan(&s.day, &s.shares); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
