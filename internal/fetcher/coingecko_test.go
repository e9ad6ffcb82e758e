package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCoinGeckoFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin,ethereum" {
			t.Fatalf("unexpected ids param: %s", got)
		}
		if got := r.URL.Query().Get("include_24hr_change"); got != "true" {
			t.Fatalf("24h change should be requested, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{
			"bitcoin":  {"usd": 45000.5, "usd_24h_change": 2.5},
			"ethereum": {"usd": 3000, "usd_24h_change": -1.2},
		})
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{
		BaseURL:           srv.URL,
		RequestsPerMinute: 600,
		Timeout:           time.Second,
		UserAgent:         "test",
	}, noopLogger())

	quotes, failed := c.FetchQuotes(context.Background(), []string{"bitcoin", "ethereum"})
	if len(failed) != 0 {
		t.Fatalf("no symbol should fail: %v", failed)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}
	if quotes[0].Symbol != "bitcoin" || quotes[0].AssetType != "crypto" {
		t.Fatalf("unexpected first quote: %+v", quotes[0])
	}
	if quotes[0].Price.Cmp(decimal.NewFromFloat(45000.5)) != 0 {
		t.Fatalf("expected price 45000.5, got %s", quotes[0].Price)
	}
}

func TestCoinGeckoMissingSymbolMarkedFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{
			"bitcoin": {"usd": 45000},
		})
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, RequestsPerMinute: 600, Timeout: time.Second}, noopLogger())

	quotes, failed := c.FetchQuotes(context.Background(), []string{"bitcoin", "dogecoin"})
	if len(quotes) != 1 {
		t.Fatalf("bitcoin should still be fetched, got %d quotes", len(quotes))
	}
	if _, ok := failed["dogecoin"]; !ok {
		t.Fatalf("dogecoin should carry a failure marker: %v", failed)
	}
}

func TestCoinGeckoHTTPErrorFailsAllSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, RequestsPerMinute: 600, Timeout: time.Second}, noopLogger())

	quotes, failed := c.FetchQuotes(context.Background(), []string{"bitcoin", "ethereum"})
	if len(quotes) != 0 {
		t.Fatalf("no quotes expected on HTTP 429, got %d", len(quotes))
	}
	if len(failed) != 2 {
		t.Fatalf("both symbols should fail, got %v", failed)
	}
}
