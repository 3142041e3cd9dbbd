package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var reSixDigit = regexp.MustCompile(`^\d{6}$`) // Chinese stock/fund codes

// Prices above this threshold come back in cents from the quote endpoint.
const (
	priceScaleThreshold = 1000.0
	priceScaleFactor    = 100.0
)

// Eastmoney reads A-share quotes from push2.eastmoney.com and falls back to
// the fund valuation endpoint for six-digit fund codes. Symbols are six-digit
// codes with an optional SH/SZ prefix.
type Eastmoney struct {
	Client  HTTPDoer
	BaseURL string
	FundURL string
}

// NewEastmoney returns an Eastmoney provider using client, or a default client when nil.
func NewEastmoney(client HTTPDoer) *Eastmoney {
	return &Eastmoney{
		Client:  defaultClient(client),
		BaseURL: "http://push2.eastmoney.com",
		FundURL: "http://fundgz.1234567.com.cn",
	}
}

func (e *Eastmoney) Name() string { return "eastmoney" }

func (e *Eastmoney) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	code := strings.ToUpper(strings.TrimSpace(symbol))
	market := 0
	switch {
	case strings.HasPrefix(code, "SH"):
		market = 1
		code = code[2:]
	case strings.HasPrefix(code, "SZ"):
		code = code[2:]
	case strings.HasPrefix(code, "6"):
		market = 1
	}
	if !reSixDigit.MatchString(code) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}

	price, err := e.fetchStock(ctx, market, code)
	if err == nil {
		return price, nil
	}
	if fundPrice, fundErr := e.fetchFund(ctx, code); fundErr == nil {
		return fundPrice, nil
	}
	return 0, err
}

func (e *Eastmoney) fetchStock(ctx context.Context, market int, code string) (float64, error) {
	u := fmt.Sprintf("%s/api/qt/stock/get?secid=%d.%s&fields=f43&ut=fa5fd1943c7b386f172d6893dbfba10b", e.BaseURL, market, code)
	body, err := httpGet(ctx, e.Client, u, map[string]string{"User-Agent": "Mozilla/5.0", "Referer": "http://quote.eastmoney.com/"})
	if err != nil {
		return 0, err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	data, _ := payload["data"].(map[string]any)
	value, ok := data["f43"]
	if !ok {
		return 0, ErrNoData
	}
	price, err := parseFloat(value)
	if err != nil {
		return 0, err
	}
	if price > priceScaleThreshold {
		price = price / priceScaleFactor
	}
	return price, nil
}

func (e *Eastmoney) fetchFund(ctx context.Context, code string) (float64, error) {
	u := fmt.Sprintf("%s/js/%s.js", e.FundURL, code)
	body, err := httpGet(ctx, e.Client, u, map[string]string{"User-Agent": "Mozilla/5.0", "Referer": "http://fund.eastmoney.com/"})
	if err != nil {
		return 0, err
	}
	text := string(body)
	start := strings.Index(text, "(")
	end := strings.LastIndex(text, ")")
	if start == -1 || end == -1 || end <= start {
		return 0, ErrNoData
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(text[start+1:end]), &data); err != nil {
		return 0, err
	}
	value := data["gsz"]
	if value == nil {
		value = data["dwjz"]
	}
	return parseFloat(value)
}
