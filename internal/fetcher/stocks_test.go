package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStocksFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbols"); got != "AAPL,MSFT" {
			t.Fatalf("unexpected symbols param: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
			{"symbol":"AAPL","regularMarketPrice":150,"regularMarketPreviousClose":148.5},
			{"symbol":"MSFT","regularMarketPrice":420,"regularMarketPreviousClose":420}
		],"error":null}}`))
	}))
	defer srv.Close()

	s := NewStocks(StockOptions{BaseURL: srv.URL, RequestsPerMinute: 600, Timeout: time.Second}, noopLogger())

	quotes, failed := s.FetchQuotes(context.Background(), []string{"AAPL", "MSFT"})
	if len(failed) != 0 {
		t.Fatalf("no symbol should fail: %v", failed)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}
	if quotes[0].AssetType != "stock" {
		t.Fatalf("expected stock asset type, got %s", quotes[0].AssetType)
	}

	// (150 - 148.5) / 148.5 * 100
	want := decimal.RequireFromString("1.5").Div(decimal.RequireFromString("148.5")).Mul(decimal.NewFromInt(100))
	if quotes[0].Change24h.Cmp(want) != 0 {
		t.Fatalf("expected change %s, got %s", want, quotes[0].Change24h)
	}
	if !quotes[1].Change24h.IsZero() {
		t.Fatalf("flat price should have zero change, got %s", quotes[1].Change24h)
	}
}

func TestStocksMissingSymbolMarkedFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
			{"symbol":"AAPL","regularMarketPrice":150,"regularMarketPreviousClose":148.5}
		],"error":null}}`))
	}))
	defer srv.Close()

	s := NewStocks(StockOptions{BaseURL: srv.URL, RequestsPerMinute: 600, Timeout: time.Second}, noopLogger())

	quotes, failed := s.FetchQuotes(context.Background(), []string{"AAPL", "TSLA"})
	if len(quotes) != 1 {
		t.Fatalf("AAPL should still be fetched, got %d quotes", len(quotes))
	}
	if _, ok := failed["TSLA"]; !ok {
		t.Fatalf("TSLA should carry a failure marker: %v", failed)
	}
}

func TestStocksUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[],"error":{"code":"internal","description":"boom"}}}`))
	}))
	defer srv.Close()

	s := NewStocks(StockOptions{BaseURL: srv.URL, RequestsPerMinute: 600, Timeout: time.Second}, noopLogger())

	quotes, failed := s.FetchQuotes(context.Background(), []string{"AAPL"})
	if len(quotes) != 0 || len(failed) != 1 {
		t.Fatalf("upstream error should fail every symbol: quotes=%d failed=%v", len(quotes), failed)
	}
}
