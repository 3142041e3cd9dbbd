package quote

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Sina reads the hq.sinajs.cn quote list. Symbols carry the market prefix
// Sina uses: sh600519, sz000001, hk00700 or gb_aapl.
type Sina struct {
	Client  HTTPDoer
	BaseURL string
}

// NewSina returns a Sina provider using client, or a default client when nil.
func NewSina(client HTTPDoer) *Sina {
	return &Sina{Client: defaultClient(client), BaseURL: "http://hq.sinajs.cn"}
}

func (s *Sina) Name() string { return "sina" }

func (s *Sina) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	code := strings.ToLower(symbol)
	// Position of the current price among the comma-separated fields.
	field := 3
	switch {
	case strings.HasPrefix(code, "sh"), strings.HasPrefix(code, "sz"):
	case strings.HasPrefix(code, "hk"):
		field = 6
	case strings.HasPrefix(code, "gb_"):
		field = 1
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}

	u := fmt.Sprintf("%s/list=%s", s.BaseURL, code)
	body, err := httpGet(ctx, s.Client, u, map[string]string{"Referer": "http://finance.sina.com.cn"})
	if err != nil {
		return 0, err
	}
	parts := strings.SplitN(string(body), "=\"", 2)
	if len(parts) < 2 {
		return 0, ErrNoData
	}
	data := strings.Split(parts[1], ",")
	if len(data) <= field {
		return 0, ErrNoData
	}
	return strconv.ParseFloat(strings.TrimSpace(data[field]), 64)
}
