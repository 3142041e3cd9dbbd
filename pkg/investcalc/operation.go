package investcalc

import (
	"context"
	"fmt"
	"strings"
)

// Operation translates between unsigned user entry, which distinguishes
// operations by kind, and the signed flows the ledger stores.
type Operation struct {
	Name         string
	SharesChange bool
	SharesMinus  bool
	MoneyMinus   bool
}

var (
	OpBuy      = Operation{Name: "Buy", SharesChange: true, MoneyMinus: true}
	OpSell     = Operation{Name: "Sell", SharesChange: true, SharesMinus: true}
	OpDividend = Operation{Name: "Dividend"}
	OpCost     = Operation{Name: "Cost", MoneyMinus: true}
)

var operations = []Operation{OpBuy, OpSell, OpDividend, OpCost}

// ParseOperation looks up an operation by name, ignoring case.
func ParseOperation(name string) (Operation, error) {
	name = strings.TrimSpace(name)
	for _, op := range operations {
		if strings.EqualFold(op.Name, name) {
			return op, nil
		}
	}
	if strings.EqualFold(name, "div") {
		return OpDividend, nil
	}
	return Operation{}, NewError(ErrCodeInvalidInput, fmt.Sprintf("unknown operation: %s", name))
}

// Signed returns the share and money deltas for unsigned shares and total.
// Operations that do not change shares ignore the shares argument.
func (op Operation) Signed(shares, total Amount) (Amount, Amount) {
	var sharesDelta Amount
	if op.SharesChange {
		sharesDelta = shares
		if op.SharesMinus {
			sharesDelta = shares.Negated()
		}
	}
	money := total
	if op.MoneyMinus {
		money = total.Negated()
	}
	return sharesDelta, money
}

// OperationRequest is an unsigned operation as entered by a user.
type OperationRequest struct {
	Operation Operation
	Stock     string
	Day       Day
	Shares    Amount
	Total     Amount
	Comment   *string
}

// RecordOperation records an unsigned user operation. Unlike Record it
// refuses a sell that would leave the stock short on its day or on any
// later recorded flow.
func (c *Core) RecordOperation(ctx context.Context, req OperationRequest) (int64, error) {
	op := req.Operation
	if op.Name == "" {
		return 0, NewError(ErrCodeInvalidInput, "operation required")
	}
	if op.SharesChange && !req.Shares.IsPositive() {
		return 0, NewError(ErrCodeValidation, "shares must be positive")
	}
	if req.Total.IsNegative() {
		return 0, NewError(ErrCodeValidation, "total must not be negative")
	}

	stock := normalizeStock(req.Stock)
	if stock == "" {
		return 0, NewError(ErrCodeInvalidInput, "stock required")
	}
	if op.SharesMinus {
		if err := c.CheckHeld(ctx, stock, req.Day, req.Shares); err != nil {
			return 0, err
		}
	}

	shares, money := op.Signed(req.Shares, req.Total)
	return c.Record(ctx, RecordRequest{
		Stock:   stock,
		Day:     req.Day,
		Shares:  shares,
		Money:   money,
		Comment: req.Comment,
	})
}

// CheckHeld returns a *BalanceViolationError when selling shares of stock
// on day would drive its balance negative at that day or at any later flow,
// replaying the stock's history the same way ImportBatch does.
func (c *Core) CheckHeld(ctx context.Context, stock string, day Day, shares Amount) error {
	if day.IsZero() {
		day = c.Today()
	}
	return replayStock(ctx, c.db, normalizeStock(stock), day, []replayStep{{day: day, shares: shares.Negated()}})
}
