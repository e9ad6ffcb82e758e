package validate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"price-tracker/internal/fetcher"
	"price-tracker/internal/storage"
)

var (
	// ErrNotWhitelisted marks a symbol outside the configured tracking set.
	ErrNotWhitelisted = errors.New("symbol not in whitelist")
	// ErrBadPrice marks a non-positive price.
	ErrBadPrice = errors.New("price must be positive")
	// ErrImplausibleChange marks a 24h change outside the sanity band.
	ErrImplausibleChange = errors.New("24h change outside sanity band")
	// ErrUnknownAssetType marks an asset type other than crypto or stock.
	ErrUnknownAssetType = errors.New("unknown asset type")
)

// Rules holds the validation whitelist and bounds. A quote that fails any
// check is dropped before it reaches the store.
type Rules struct {
	whitelist    map[string]string
	maxChangePct decimal.Decimal
}

// NewRules builds validation rules from the tracked symbol sets.
func NewRules(cryptoSymbols, stockSymbols []string, maxChangePct decimal.Decimal) Rules {
	whitelist := make(map[string]string, len(cryptoSymbols)+len(stockSymbols))
	for _, symbol := range cryptoSymbols {
		whitelist[symbol] = storage.AssetTypeCrypto
	}
	for _, symbol := range stockSymbols {
		whitelist[symbol] = storage.AssetTypeStock
	}
	return Rules{whitelist: whitelist, maxChangePct: maxChangePct}
}

// Check reports why a quote must be rejected, or nil when it may be stored.
func (r Rules) Check(q fetcher.Quote) error {
	assetType, ok := r.whitelist[q.Symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, q.Symbol)
	}
	if q.AssetType != storage.AssetTypeCrypto && q.AssetType != storage.AssetTypeStock {
		return fmt.Errorf("%w: %s", ErrUnknownAssetType, q.AssetType)
	}
	if q.AssetType != assetType {
		return fmt.Errorf("%w: %s reported as %s", ErrUnknownAssetType, q.Symbol, q.AssetType)
	}
	if q.Price.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrBadPrice, q.Price)
	}
	if q.Change24h.Abs().GreaterThan(r.maxChangePct) {
		return fmt.Errorf("%w: %s%%", ErrImplausibleChange, q.Change24h)
	}
	return nil
}

// Whitelisted reports whether a symbol belongs to the tracking set.
func (r Rules) Whitelisted(symbol string) bool {
	_, ok := r.whitelist[symbol]
	return ok
}

// Symbols returns the whitelisted symbols and their asset types.
func (r Rules) Symbols() map[string]string {
	out := make(map[string]string, len(r.whitelist))
	for symbol, assetType := range r.whitelist {
		out[symbol] = assetType
	}
	return out
}
