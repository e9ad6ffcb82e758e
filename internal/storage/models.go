package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset types accepted by the store.
const (
	AssetTypeCrypto = "crypto"
	AssetTypeStock  = "stock"
)

// PriceSample represents one observed price record. Immutable once logged;
// (symbol, observed_at) identifies a sample, later writes with the same key
// are discarded.
type PriceSample struct {
	Symbol     string
	Price      decimal.Decimal
	Change24h  decimal.Decimal
	AssetType  string
	ObservedAt time.Time
	CreatedAt  time.Time
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID           int64
	Symbol       string
	Price        decimal.Decimal
	ChangePct    decimal.Decimal
	ThresholdPct decimal.Decimal
	Direction    string
	Channels     []string
	CreatedAt    time.Time
}

// Stats summarises the stored data set.
type Stats struct {
	TotalEntries int64
	UniqueAssets int64
	FirstEntry   *time.Time
	LatestEntry  *time.Time
}
