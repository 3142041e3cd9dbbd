package investcalc

// Stock is a security that has appeared in at least one flow.
type Stock struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	QuoteCode *string `json:"quote_code"`
}

// Flow is one signed (shares, money) transaction of a stock on a day.
type Flow struct {
	ID      int64   `json:"id"`
	Stock   string  `json:"stock"`
	Day     Day     `json:"day"`
	Shares  Amount  `json:"shares"`
	Money   Amount  `json:"money"`
	Comment *string `json:"comment"`
}

// RecordRequest defines inputs to record a flow.
type RecordRequest struct {
	Stock   string
	Day     Day
	Shares  Amount
	Money   Amount
	Comment *string
}

// PortfolioEntry is the derived share balance of one stock.
type PortfolioEntry struct {
	Stock       string `json:"stock"`
	TotalShares Amount `json:"total_shares"`
}

// CashFlow is a money delta on a day, the input of return computations.
type CashFlow struct {
	Amount float64 `json:"amount"`
	Day    Day     `json:"day"`
}

// HistoryFilter selects ledger rows. Zero days leave that bound open.
type HistoryFilter struct {
	Stocks []string
	From   Day
	To     Day
}

// HistoryRow is one flow as displayed, in canonical order.
type HistoryRow struct {
	Flow
	AvgPrice Amount `json:"avg_price"`
}

// LatestPrice is the last known price of a stock.
type LatestPrice struct {
	Stock     string  `json:"stock"`
	Price     float64 `json:"price"`
	Source    string  `json:"source"`
	UpdatedAt string  `json:"updated_at"`
}

// OperationLog represents an audit log record.
type OperationLog struct {
	ID           int64    `json:"id"`
	Operation    string   `json:"operation_type"`
	Stock        *string  `json:"stock"`
	Details      *string  `json:"details"`
	RowsAffected *int64   `json:"rows_affected"`
	PriceFetched *float64 `json:"price_fetched"`
	CreatedAt    *string  `json:"created_at"`
}

// Operation log kinds.
const (
	OpRecord            = "RECORD"
	OpDelete            = "DELETE"
	OpImport            = "IMPORT"
	OpPriceUpdate       = "PRICE_UPDATE"
	OpPriceUpdateFailed = "PRICE_UPDATE_FAILED"
	OpManualPrice       = "MANUAL_PRICE_UPDATE"
	OpQuoteCode         = "QUOTE_CODE_UPDATE"
)

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func floatPtr(value float64) *float64 {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}
