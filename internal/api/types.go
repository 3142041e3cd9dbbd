package api

import "investcalc/pkg/investcalc"

// recordFlowPayload records either a signed flow (shares, money) or, when
// operation is set, an unsigned operation (shares, total).
type recordFlowPayload struct {
	Stock     string            `json:"stock"`
	Day       investcalc.Day    `json:"day"`
	Shares    investcalc.Amount `json:"shares"`
	Money     investcalc.Amount `json:"money"`
	Operation string            `json:"operation"`
	Total     investcalc.Amount `json:"total"`
	Comment   *string           `json:"comment"`
}

type quoteCodePayload struct {
	QuoteCode string `json:"quote_code"`
}

type manualPricePayload struct {
	Price *float64 `json:"price"`
}

type deleteHistoryPayload struct {
	Stocks []string       `json:"stocks"`
	From   investcalc.Day `json:"from"`
	To     investcalc.Day `json:"to"`
	IDs    []int64        `json:"ids"`
}

type importPayload struct {
	Text      string `json:"text"`
	Delimiter string `json:"delimiter"`
}

type stockResponse struct {
	Name        string            `json:"name"`
	QuoteCode   *string           `json:"quote_code"`
	TotalShares investcalc.Amount `json:"total_shares"`
}

type storageInfoResponse struct {
	DBName    string   `json:"db_name"`
	DBPath    string   `json:"db_path"`
	DataDir   string   `json:"data_dir"`
	SizeBytes int64    `json:"size_bytes"`
	Available []string `json:"available"`
}
