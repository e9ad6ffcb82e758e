package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"price-tracker/internal/service"
)

// SimulateAlert replays a synthetic price move through the alert pipeline.
func (a *App) SimulateAlert(ctx context.Context, symbol string, baseline, price decimal.Decimal) error {
	rules := a.newRules()
	assetType, ok := rules.Symbols()[symbol]
	if !ok {
		return errors.New("--symbol must name a tracked symbol")
	}

	dispatcher := a.newDispatcher()
	crypto, stocks := a.newFetchers()

	svc := service.New(a.Config, crypto, stocks, rules, nil, nil, nil, a.newEngine(), dispatcher, a.Logger)

	sim := service.SimulatedQuote{
		Symbol:    symbol,
		AssetType: assetType,
		Baseline:  baseline,
		Price:     price,
	}
	return svc.Simulate(ctx, sim)
}
