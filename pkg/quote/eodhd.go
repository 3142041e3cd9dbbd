package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"
)

// EODHD defaults.
const (
	EODHDBaseURL   = "https://eodhd.com/api"
	EODHDRateLimit = 10 // requests per second
)

// ErrMissingAPIKey is returned by EODHD when no API key is configured.
var ErrMissingAPIKey = errors.New("eodhd: api key not configured")

// EODHD reads the real-time endpoint of eodhd.com. Symbols are EODHD tickers
// such as AAPL.US or BHP.AU. Requests are rate limited.
type EODHD struct {
	Client  HTTPDoer
	BaseURL string
	apiKey  string
	limiter *rate.Limiter
}

// NewEODHD returns an EODHD provider. requestsPerSecond <= 0 uses the default.
func NewEODHD(client HTTPDoer, apiKey string, requestsPerSecond int) *EODHD {
	if requestsPerSecond <= 0 {
		requestsPerSecond = EODHDRateLimit
	}
	return &EODHD{
		Client:  defaultClient(client),
		BaseURL: EODHDBaseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

func (e *EODHD) Name() string { return "eodhd" }

// APIError represents an error answer of the EODHD API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cannot unmarshal %s into float64", string(data))
	}
	if s == "" || s == "NA" || s == "N/A" {
		*f = 0
		return nil
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat64(num)
	return nil
}

type realTimeResponse struct {
	Code          string      `json:"code"`
	Close         flexFloat64 `json:"close"`
	PreviousClose flexFloat64 `json:"previousClose"`
}

func (e *EODHD) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	if e.apiKey == "" {
		return 0, ErrMissingAPIKey
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	path := "/real-time/" + url.PathEscape(symbol)
	params := url.Values{}
	params.Set("api_token", e.apiKey)
	params.Set("fmt", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return 0, &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
	}

	var result realTimeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	price := float64(result.Close)
	if price <= 0 {
		price = float64(result.PreviousClose)
	}
	if price <= 0 {
		return 0, ErrNoData
	}
	return price, nil
}
