package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-tracker/internal/alerting"
	"price-tracker/internal/config"
	"price-tracker/internal/storage"
	"price-tracker/internal/validate"
)

type fakeStore struct {
	samples []storage.PriceSample
	removed int64
}

func (f *fakeStore) AppendSample(context.Context, storage.PriceSample) (bool, error) {
	return true, nil
}

func (f *fakeStore) ListRange(_ context.Context, symbol string, from, to time.Time) ([]storage.PriceSample, error) {
	var out []storage.PriceSample
	for _, s := range f.samples {
		if s.Symbol == symbol && !s.ObservedAt.Before(from) && !s.ObservedAt.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRecentSamples(context.Context, int) ([]storage.PriceSample, error) {
	return f.samples, nil
}

func (f *fakeStore) LatestPerSymbol(context.Context) ([]storage.PriceSample, error) {
	latest := map[string]storage.PriceSample{}
	for _, s := range f.samples {
		if cur, ok := latest[s.Symbol]; !ok || s.ObservedAt.After(cur.ObservedAt) {
			latest[s.Symbol] = s
		}
	}
	out := make([]storage.PriceSample, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) LatestBySymbol(_ context.Context, symbol string) (*storage.PriceSample, error) {
	var found *storage.PriceSample
	for i := range f.samples {
		s := f.samples[i]
		if s.Symbol != symbol {
			continue
		}
		if found == nil || s.ObservedAt.After(found.ObservedAt) {
			found = &s
		}
	}
	return found, nil
}

func (f *fakeStore) CollectStats(context.Context) (storage.Stats, error) {
	seen := map[string]struct{}{}
	for _, s := range f.samples {
		seen[s.Symbol] = struct{}{}
	}
	return storage.Stats{TotalEntries: int64(len(f.samples)), UniqueAssets: int64(len(seen))}, nil
}

func (f *fakeStore) DeleteSamplesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []storage.PriceSample
	for _, s := range f.samples {
		if s.ObservedAt.Before(cutoff) {
			f.removed++
			continue
		}
		kept = append(kept, s)
	}
	f.samples = kept
	return f.removed, nil
}

func testServer(t *testing.T, store *fakeStore) *Server {
	t.Helper()
	cfg := config.DashboardConfig{
		ListenAddr:        "127.0.0.1:0",
		RequestsPerMinute: 600,
		ChartDefaultHours: 24,
		ChartMaxHours:     168,
	}
	engine := alerting.NewEngine(decimal.NewFromFloat(5.0), 5*time.Minute)
	rules := validate.NewRules([]string{"bitcoin", "ethereum"}, []string{"AAPL"}, decimal.NewFromInt(500))
	return New(cfg, store, engine, rules, zerolog.Nop())
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestGetPricesReturnsLatestSnapshot(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{samples: []storage.PriceSample{
		{Symbol: "bitcoin", Price: decimal.NewFromInt(50000), AssetType: storage.AssetTypeCrypto, ObservedAt: now.Add(-time.Minute)},
		{Symbol: "bitcoin", Price: decimal.NewFromInt(51000), AssetType: storage.AssetTypeCrypto, ObservedAt: now},
		{Symbol: "AAPL", Price: decimal.NewFromInt(180), AssetType: storage.AssetTypeStock, ObservedAt: now},
	}}
	srv := testServer(t, store)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != true {
		t.Fatalf("success = %v, want true", body["success"])
	}
	data := body["data"].(map[string]any)
	if len(data) != 2 {
		t.Fatalf("got %d symbols, want 2", len(data))
	}
	btc := data["bitcoin"].(map[string]any)
	if btc["price"].(float64) != 51000 {
		t.Errorf("bitcoin price = %v, want latest 51000", btc["price"])
	}
}

func TestGetChartReturnsAscendingSeries(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{samples: []storage.PriceSample{
		{Symbol: "bitcoin", Price: decimal.NewFromInt(100), ObservedAt: now.Add(-3 * time.Hour)},
		{Symbol: "bitcoin", Price: decimal.NewFromInt(110), ObservedAt: now.Add(-2 * time.Hour)},
		{Symbol: "bitcoin", Price: decimal.NewFromInt(120), ObservedAt: now.Add(-time.Hour)},
	}}
	srv := testServer(t, store)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chart/bitcoin?hours=6", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	data := body["data"].(map[string]any)
	y := data["y"].([]any)
	if len(y) != 3 {
		t.Fatalf("got %d points, want 3", len(y))
	}
	if y[0].(float64) != 100 || y[2].(float64) != 120 {
		t.Errorf("series out of order: %v", y)
	}
}

func TestGetChartRejectsUnknownSymbol(t *testing.T) {
	srv := testServer(t, &fakeStore{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chart/dogecoin", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func TestGetChartRejectsOutOfRangeHours(t *testing.T) {
	srv := testServer(t, &fakeStore{})

	for _, hours := range []string{"0", "169", "abc"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chart/bitcoin?hours="+hours, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("hours=%s: status = %d, want 400", hours, rec.Code)
		}
	}
}

func TestGetChartNoDataIs404(t *testing.T) {
	srv := testServer(t, &fakeStore{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chart/bitcoin", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{samples: []storage.PriceSample{
		{Symbol: "bitcoin", ObservedAt: now},
		{Symbol: "AAPL", ObservedAt: now},
	}}
	srv := testServer(t, store)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["total_entries"].(float64) != 2 {
		t.Errorf("total_entries = %v, want 2", data["total_entries"])
	}
	if data["unique_assets"].(float64) != 2 {
		t.Errorf("unique_assets = %v, want 2", data["unique_assets"])
	}
}

func TestUpdateThresholdBounds(t *testing.T) {
	srv := testServer(t, &fakeStore{})

	post := func(payload string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/update_threshold", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	if rec := post(`{"threshold": 7.5}`); rec.Code != http.StatusOK {
		t.Fatalf("valid threshold: status = %d, want 200", rec.Code)
	}
	if got := srv.engine.Threshold(); !got.Equal(decimal.NewFromFloat(7.5)) {
		t.Errorf("engine threshold = %s, want 7.5", got)
	}

	for _, payload := range []string{`{"threshold": 0.05}`, `{"threshold": 150}`, `not json`} {
		if rec := post(payload); rec.Code != http.StatusBadRequest {
			t.Errorf("payload %q: status = %d, want 400", payload, rec.Code)
		}
	}
}

func TestUpdateCooldownBounds(t *testing.T) {
	srv := testServer(t, &fakeStore{})

	post := func(payload string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/update_cooldown", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	if rec := post(`{"cooldown": 120}`); rec.Code != http.StatusOK {
		t.Fatalf("valid cooldown: status = %d, want 200", rec.Code)
	}
	if got := srv.engine.Cooldown(); got != 2*time.Minute {
		t.Errorf("engine cooldown = %s, want 2m", got)
	}

	for _, payload := range []string{`{"cooldown": 30}`, `{"cooldown": 7200}`} {
		if rec := post(payload); rec.Code != http.StatusBadRequest {
			t.Errorf("payload %q: status = %d, want 400", payload, rec.Code)
		}
	}
}

func TestCleanupRemovesOldSamples(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{samples: []storage.PriceSample{
		{Symbol: "bitcoin", ObservedAt: now.AddDate(0, 0, -10)},
		{Symbol: "bitcoin", ObservedAt: now},
	}}
	srv := testServer(t, store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/cleanup", bytes.NewBufferString(`{"days": 7}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["removed"].(float64) != 1 {
		t.Errorf("removed = %v, want 1", data["removed"])
	}
	if len(store.samples) != 1 {
		t.Errorf("store left with %d samples, want 1", len(store.samples))
	}
}

func TestRateLimitReturns429(t *testing.T) {
	cfg := config.DashboardConfig{
		ListenAddr:        "127.0.0.1:0",
		RequestsPerMinute: 2,
		ChartDefaultHours: 24,
		ChartMaxHours:     168,
	}
	engine := alerting.NewEngine(decimal.NewFromFloat(5.0), 5*time.Minute)
	rules := validate.NewRules([]string{"bitcoin"}, nil, decimal.NewFromInt(500))
	srv := New(cfg, &fakeStore{}, engine, rules, zerolog.Nop())
	handler := srv.Handler()

	var last int
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", last)
	}
}
