package quote

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Tencent reads qt.gtimg.cn. Symbols carry Tencent's market prefix:
// sh600519, sz000001, hk00700 or usAAPL.
type Tencent struct {
	Client  HTTPDoer
	BaseURL string
}

// NewTencent returns a Tencent provider using client, or a default client when nil.
func NewTencent(client HTTPDoer) *Tencent {
	return &Tencent{Client: defaultClient(client), BaseURL: "http://qt.gtimg.cn"}
}

func (t *Tencent) Name() string { return "tencent" }

func (t *Tencent) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	lower := strings.ToLower(symbol)
	var code string
	switch {
	case strings.HasPrefix(lower, "sh"), strings.HasPrefix(lower, "sz"), strings.HasPrefix(lower, "hk"):
		code = lower
	case strings.HasPrefix(lower, "us"):
		code = "us" + strings.ToUpper(symbol[2:])
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}

	body, err := httpGet(ctx, t.Client, fmt.Sprintf("%s/q=%s", t.BaseURL, code), nil)
	if err != nil {
		return 0, err
	}
	parts := strings.Split(string(body), "~")
	if len(parts) <= 3 {
		return 0, ErrNoData
	}
	return strconv.ParseFloat(parts[3], 64)
}
