package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pricepulse/pricepulse/internal/domain"
)

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("function"); got != "GLOBAL_QUOTE" {
			t.Errorf("expected function=GLOBAL_QUOTE, got %q", got)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchLatestPrice(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{
		"Global Quote": {
			"01. symbol": "AAPL",
			"05. price": "196.4500",
			"07. latest trading day": "2025-06-14"
		}
	}`)

	av := NewAlphaVantage("test-key", srv.URL, 5*time.Second)

	quote, err := av.FetchLatestPrice(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("FetchLatestPrice: %v", err)
	}

	if quote.Symbol != "AAPL" {
		t.Errorf("expected normalized symbol AAPL, got %q", quote.Symbol)
	}
	if quote.Price != 196.45 {
		t.Errorf("expected price 196.45, got %v", quote.Price)
	}
	if len(quote.Raw) == 0 {
		t.Error("expected the raw payload to be retained")
	}
	if quote.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestFetchLatestPriceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "error message means invalid symbol",
			status: http.StatusOK,
			body:   `{"Error Message": "Invalid API call for symbol ZZZZ"}`,
			want:   domain.ErrInvalidSymbol,
		},
		{
			name:   "empty quote means invalid symbol",
			status: http.StatusOK,
			body:   `{"Global Quote": {}}`,
			want:   domain.ErrInvalidSymbol,
		},
		{
			name:   "in-band note means provider rate limit",
			status: http.StatusOK,
			body:   `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`,
			want:   domain.ErrProviderRateLimited,
		},
		{
			name:   "http 429 means provider rate limit",
			status: http.StatusTooManyRequests,
			body:   `{}`,
			want:   domain.ErrProviderRateLimited,
		},
		{
			name:   "http 500 means provider unavailable",
			status: http.StatusInternalServerError,
			body:   `{}`,
			want:   domain.ErrProviderUnavailable,
		},
		{
			name:   "garbage body means parse error",
			status: http.StatusOK,
			body:   `<html>not json</html>`,
			want:   domain.ErrParse,
		},
		{
			name:   "missing price field means parse error",
			status: http.StatusOK,
			body:   `{"Global Quote": {"01. symbol": "AAPL"}}`,
			want:   domain.ErrParse,
		},
		{
			name:   "unparsable price means parse error",
			status: http.StatusOK,
			body:   `{"Global Quote": {"05. price": "n/a"}}`,
			want:   domain.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body)
			av := NewAlphaVantage("test-key", srv.URL, 5*time.Second)

			_, err := av.FetchLatestPrice(context.Background(), "ZZZZ")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetchLatestPriceNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	av := NewAlphaVantage("test-key", srv.URL, time.Second)

	_, err := av.FetchLatestPrice(context.Background(), "AAPL")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(alphaVantageName)
	av := NewAlphaVantage("key", "", time.Second)
	reg.Register(av)

	got, err := reg.Get("")
	if err != nil {
		t.Fatalf("default lookup: %v", err)
	}
	if got.Name() != alphaVantageName {
		t.Errorf("expected default provider, got %q", got.Name())
	}

	if _, err := reg.Get("finnhub"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
