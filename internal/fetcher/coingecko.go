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

const simplePricePath = "/simple/price"

// CoinGeckoOptions parameterise the crypto fetcher.
type CoinGeckoOptions struct {
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
	UserAgent         string
}

// CoinGecko fetches crypto quotes from the CoinGecko simple price API in one
// batched request per cycle.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewCoinGecko constructs a crypto quote fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	perMinute := opts.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 50
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		baseURL: baseURL,
	}
}

// FetchQuotes retrieves USD prices and 24h change for the given coin ids.
func (c *CoinGecko) FetchQuotes(ctx context.Context, symbols []string) ([]Quote, map[string]error) {
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

	if err := c.limiter.Wait(ctx); err != nil {
		return failAll(err)
	}

	params := url.Values{}
	params.Set("ids", strings.Join(symbols, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")

	endpoint := c.baseURL + simplePricePath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return failAll(err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return failAll(fmt.Errorf("coingecko request: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return failAll(fmt.Errorf("read coingecko response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return failAll(fmt.Errorf("coingecko api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var body map[string]map[string]json.Number
	if err := json.Unmarshal(payload, &body); err != nil {
		return failAll(fmt.Errorf("decode coingecko response: %w", err))
	}

	observedAt := time.Now().UTC()
	quotes := make([]Quote, 0, len(symbols))
	for _, symbol := range symbols {
		coin, ok := body[symbol]
		if !ok {
			failed[symbol] = fmt.Errorf("no data returned for %s", symbol)
			continue
		}

		quote, err := coinQuote(symbol, coin, observedAt)
		if err != nil {
			failed[symbol] = err
			continue
		}
		quotes = append(quotes, quote)
	}

	c.logger.Debug().Int("requested", len(symbols)).Int("fetched", len(quotes)).Msg("crypto quotes fetched")
	if len(failed) == 0 {
		return quotes, nil
	}
	return quotes, failed
}

func coinQuote(symbol string, coin map[string]json.Number, observedAt time.Time) (Quote, error) {
	priceNum, ok := coin["usd"]
	if !ok {
		return Quote{}, fmt.Errorf("missing usd price for %s", symbol)
	}

	price, err := decimal.NewFromString(priceNum.String())
	if err != nil {
		return Quote{}, fmt.Errorf("parse price for %s: %w", symbol, err)
	}

	change := decimal.Zero
	if changeNum, ok := coin["usd_24h_change"]; ok {
		change, err = decimal.NewFromString(changeNum.String())
		if err != nil {
			return Quote{}, fmt.Errorf("parse 24h change for %s: %w", symbol, err)
		}
	}

	return Quote{
		Symbol:     symbol,
		Price:      price,
		Change24h:  change,
		AssetType:  "crypto",
		ObservedAt: observedAt,
	}, nil
}

var _ QuoteFetcher = (*CoinGecko)(nil)
