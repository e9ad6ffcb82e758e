package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const stockQuotePath = "/v7/finance/quote"

var dec100 = decimal.NewFromInt(100)

// StockOptions parameterise the stock quote fetcher.
type StockOptions struct {
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
	UserAgent         string
}

// Stocks fetches stock quotes from a Yahoo-style finance quote endpoint.
// The upstream supports batching, so all symbols go in one request.
type Stocks struct {
	opts    StockOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewStocks constructs a stock quote fetcher.
func NewStocks(opts StockOptions, logger zerolog.Logger) *Stocks {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	perMinute := opts.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}

	return &Stocks{
		opts:    opts,
		logger:  logger.With().Str("component", "stock_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		baseURL: baseURL,
	}
}

type stockQuoteResponse struct {
	QuoteResponse struct {
		Result []stockQuoteResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

type stockQuoteResult struct {
	Symbol                     string      `json:"symbol"`
	RegularMarketPrice         json.Number `json:"regularMarketPrice"`
	RegularMarketPreviousClose json.Number `json:"regularMarketPreviousClose"`
}

// FetchQuotes retrieves quotes for the given stock symbols. The 24h change is
// derived from the previous close since the upstream does not report it directly.
func (s *Stocks) FetchQuotes(ctx context.Context, symbols []string) ([]Quote, map[string]error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	failed := make(map[string]error)
	failAll := func(err error) ([]Quote, map[string]error) {
		for _, symbol := range symbols {
			failed[symbol] = err
		}
		return nil, failed
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return failAll(err)
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	endpoint := s.baseURL + stockQuotePath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return failAll(err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return failAll(fmt.Errorf("stock quote request: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return failAll(fmt.Errorf("read stock quote response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return failAll(fmt.Errorf("stock api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var body stockQuoteResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return failAll(fmt.Errorf("decode stock quote response: %w", err))
	}
	if apiErr := body.QuoteResponse.Error; apiErr != nil {
		return failAll(fmt.Errorf("stock api error: %s", apiErr.Description))
	}

	results := make(map[string]stockQuoteResult, len(body.QuoteResponse.Result))
	for _, result := range body.QuoteResponse.Result {
		results[result.Symbol] = result
	}

	observedAt := time.Now().UTC()
	quotes := make([]Quote, 0, len(symbols))
	for _, symbol := range symbols {
		result, ok := results[symbol]
		if !ok {
			failed[symbol] = fmt.Errorf("no data returned for %s", symbol)
			continue
		}

		quote, err := stockQuote(result, observedAt)
		if err != nil {
			failed[symbol] = err
			continue
		}
		quotes = append(quotes, quote)
	}

	s.logger.Debug().Int("requested", len(symbols)).Int("fetched", len(quotes)).Msg("stock quotes fetched")
	if len(failed) == 0 {
		return quotes, nil
	}
	return quotes, failed
}

func stockQuote(result stockQuoteResult, observedAt time.Time) (Quote, error) {
	price, err := decimal.NewFromString(result.RegularMarketPrice.String())
	if err != nil {
		return Quote{}, fmt.Errorf("parse price for %s: %w", result.Symbol, err)
	}

	change := decimal.Zero
	if prev := result.RegularMarketPreviousClose.String(); prev != "" {
		previousClose, err := decimal.NewFromString(prev)
		if err != nil {
			return Quote{}, fmt.Errorf("parse previous close for %s: %w", result.Symbol, err)
		}
		if !previousClose.IsZero() {
			change = price.Sub(previousClose).Div(previousClose).Mul(dec100)
		}
	}

	return Quote{
		Symbol:     result.Symbol,
		Price:      price,
		Change24h:  change,
		AssetType:  "stock",
		ObservedAt: observedAt,
	}, nil
}

var _ QuoteFetcher = (*Stocks)(nil)
