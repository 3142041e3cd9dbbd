package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Yahoo reads the chart API of Yahoo Finance. Symbols use Yahoo's own
// notation, e.g. AAPL, 600519.SS or 0700.HK.
type Yahoo struct {
	Client  HTTPDoer
	BaseURL string
}

// NewYahoo returns a Yahoo provider using client, or a default client when nil.
func NewYahoo(client HTTPDoer) *Yahoo {
	return &Yahoo{Client: defaultClient(client), BaseURL: "https://query1.finance.yahoo.com"}
}

func (y *Yahoo) Name() string { return "yahoo" }

func (y *Yahoo) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", y.BaseURL, url.PathEscape(symbol))
	body, err := httpGet(ctx, y.Client, u, map[string]string{"User-Agent": "Mozilla/5.0"})
	if err != nil {
		return 0, err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	chart, _ := payload["chart"].(map[string]any)
	results, _ := chart["result"].([]any)
	if len(results) == 0 {
		return 0, ErrNoData
	}
	result, _ := results[0].(map[string]any)
	meta, _ := result["meta"].(map[string]any)
	if meta != nil {
		if price, err := parseFloat(meta["regularMarketPrice"]); err == nil && price > 0 {
			return price, nil
		}
	}
	indicators, _ := result["indicators"].(map[string]any)
	quoteArr, _ := indicators["quote"].([]any)
	if len(quoteArr) == 0 {
		return 0, ErrNoData
	}
	quote, _ := quoteArr[0].(map[string]any)
	closes, _ := quote["close"].([]any)
	if len(closes) == 0 {
		return 0, ErrNoData
	}
	return parseFloat(closes[len(closes)-1])
}
