package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pricepulse/pricepulse/internal/domain"
)

const (
	alphaVantageName    = "alpha_vantage"
	alphaVantageBaseURL = "https://www.alphavantage.co/query"
)

// AlphaVantage fetches quotes via the Alpha Vantage GLOBAL_QUOTE
// endpoint.
type AlphaVantage struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAlphaVantage creates an Alpha Vantage provider. baseURL may be
// empty to use the public API endpoint.
func NewAlphaVantage(apiKey, baseURL string, requestTimeout time.Duration) *AlphaVantage {
	if baseURL == "" {
		baseURL = alphaVantageBaseURL
	}
	return &AlphaVantage{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (a *AlphaVantage) Name() string { return alphaVantageName }

// globalQuoteResponse mirrors the Alpha Vantage GLOBAL_QUOTE payload.
// An error response carries "Error Message" instead; a throttled one
// carries "Note".
type globalQuoteResponse struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	ErrorMessage string            `json:"Error Message"`
	Note         string            `json:"Note"`
}

// FetchLatestPrice performs one round trip against the GLOBAL_QUOTE
// endpoint and normalizes the response. Failure classes:
// network/5xx -> ErrProviderUnavailable, 429 or in-band note ->
// ErrProviderRateLimited, unknown symbol -> ErrInvalidSymbol,
// unparsable body -> ErrParse.
func (a *AlphaVantage) FetchLatestPrice(ctx context.Context, symbol string) (Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)

	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: read body: %v", domain.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Quote{}, domain.ErrProviderRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		return Quote{}, fmt.Errorf("%w: status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Quote{}, fmt.Errorf("%w: status %d", domain.ErrParse, resp.StatusCode)
	}

	var parsed globalQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	if parsed.ErrorMessage != "" {
		return Quote{}, fmt.Errorf("%w: %s", domain.ErrInvalidSymbol, symbol)
	}
	if parsed.Note != "" {
		return Quote{}, domain.ErrProviderRateLimited
	}
	if len(parsed.GlobalQuote) == 0 {
		// Alpha Vantage returns an empty quote object for unknown symbols.
		return Quote{}, fmt.Errorf("%w: %s", domain.ErrInvalidSymbol, symbol)
	}

	priceStr, ok := parsed.GlobalQuote["05. price"]
	if !ok {
		return Quote{}, fmt.Errorf("%w: missing price field", domain.ErrParse)
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: price %q: %v", domain.ErrParse, priceStr, err)
	}

	return Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
		Raw:       json.RawMessage(body),
	}, nil
}
