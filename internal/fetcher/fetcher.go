package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one normalized upstream price record.
type Quote struct {
	Symbol     string
	Price      decimal.Decimal
	Change24h  decimal.Decimal
	AssetType  string
	ObservedAt time.Time
}

// QuoteFetcher retrieves quotes for a symbol set. The failed map carries a
// per-symbol marker for symbols that could not be fetched this cycle; a
// symbol appears either in the quotes or in the failed map, never both.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]Quote, map[string]error)
}
