package quote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Bloomberg scrapes the quote page of bloomberg.com. Symbols are Bloomberg
// tickers such as ASML:NA.
type Bloomberg struct {
	Client  HTTPDoer
	BaseURL string
}

// NewBloomberg returns a Bloomberg provider using client, or a default client when nil.
func NewBloomberg(client HTTPDoer) *Bloomberg {
	return &Bloomberg{Client: defaultClient(client), BaseURL: "https://www.bloomberg.com"}
}

func (b *Bloomberg) Name() string { return "bloomberg" }

func (b *Bloomberg) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := httpGet(ctx, b.Client, b.BaseURL+"/quote/"+url.PathEscape(symbol), map[string]string{"User-Agent": "Mozilla/5.0"})
	if err != nil {
		return 0, err
	}
	return parseBloombergPrice(string(body))
}

// parseBloombergPrice returns the inner text of the first priceText span.
func parseBloombergPrice(html string) (float64, error) {
	const marker = `<span class="priceText`
	pos := strings.Index(html, marker)
	if pos < 0 {
		return 0, ErrNoData
	}
	open := strings.IndexByte(html[pos:], '>')
	if open < 0 {
		return 0, ErrNoData
	}
	start := pos + open + 1
	end := strings.IndexByte(html[start:], '<')
	if end < 0 {
		return 0, ErrNoData
	}
	text := strings.ReplaceAll(strings.TrimSpace(html[start:start+end]), ",", "")
	price, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoData, text)
	}
	return price, nil
}
