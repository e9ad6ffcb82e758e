package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"price-tracker/internal/alerting"
	"price-tracker/internal/config"
	"price-tracker/internal/fetcher"
	"price-tracker/internal/storage"
	"price-tracker/internal/validate"
)

// Service orchestrates one polling cycle: fetch, validate, persist, alert.
type Service struct {
	crypto     fetcher.QuoteFetcher
	stocks     fetcher.QuoteFetcher
	rules      validate.Rules
	store      storage.SampleStore
	alertStore storage.AlertStore
	mirror     *storage.CSVMirror
	engine     *alerting.Engine
	dispatcher *alerting.Dispatcher
	logger     zerolog.Logger

	cryptoSymbols []string
	stockSymbols  []string
	stockEvery    int
	retention     time.Duration

	mu          sync.Mutex
	cycles      int64
	lastCleanup time.Time
}

// New constructs the monitoring service.
func New(
	cfg *config.Config,
	crypto fetcher.QuoteFetcher,
	stocks fetcher.QuoteFetcher,
	rules validate.Rules,
	store storage.SampleStore,
	alertStore storage.AlertStore,
	mirror *storage.CSVMirror,
	engine *alerting.Engine,
	dispatcher *alerting.Dispatcher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		crypto:        crypto,
		stocks:        stocks,
		rules:         rules,
		store:         store,
		alertStore:    alertStore,
		mirror:        mirror,
		engine:        engine,
		dispatcher:    dispatcher,
		logger:        logger.With().Str("component", "service").Logger(),
		cryptoSymbols: cfg.Tracker.CryptoSymbols,
		stockSymbols:  cfg.Tracker.StockSymbols,
		stockEvery:    cfg.Tracker.StockEvery,
		retention:     time.Duration(cfg.Tracker.RetentionDays) * 24 * time.Hour,
	}
}

// Engine exposes the alert engine for the dashboard's runtime updates.
func (s *Service) Engine() *alerting.Engine {
	return s.engine
}

// SeedAlertState rebuilds each symbol's baseline from the newest stored
// sample. Symbols reset to armed; cooldown state does not survive a restart.
func (s *Service) SeedAlertState(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	samples, err := s.store.LatestPerSymbol(ctx)
	if err != nil {
		return fmt.Errorf("seed alert state: %w", err)
	}

	seeded := 0
	for _, sample := range samples {
		if !s.rules.Whitelisted(sample.Symbol) {
			continue
		}
		s.engine.Seed(sample.Symbol, sample.Price)
		seeded++
	}

	s.logger.Info().Int("symbols", seeded).Msg("alert state seeded from store")
	return nil
}

// RunCycle executes one polling cycle. Crypto symbols are polled every cycle,
// stock symbols every Nth cycle. Per-symbol failures never abort the cycle.
func (s *Service) RunCycle(ctx context.Context, cycleStart time.Time) error {
	cycle := s.nextCycle()

	quotes, failed := s.crypto.FetchQuotes(ctx, s.cryptoSymbols)
	if cycle%int64(s.stockEvery) == 0 {
		stockQuotes, stockFailed := s.stocks.FetchQuotes(ctx, s.stockSymbols)
		quotes = append(quotes, stockQuotes...)
		failed = lo.Assign(failed, stockFailed)
	}

	for symbol, err := range failed {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("symbol fetch failed; retrying next cycle")
	}

	stored := 0
	duplicates := 0
	for _, quote := range quotes {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.rules.Check(quote); err != nil {
			s.logger.Warn().Err(err).Str("symbol", quote.Symbol).Msg("quote rejected by validation")
			continue
		}

		sample := storage.PriceSample{
			Symbol:     quote.Symbol,
			Price:      quote.Price,
			Change24h:  quote.Change24h,
			AssetType:  quote.AssetType,
			ObservedAt: quote.ObservedAt,
		}

		if s.store != nil {
			inserted, err := s.store.AppendSample(ctx, sample)
			switch {
			case err != nil:
				s.logger.Error().Err(err).Str("symbol", quote.Symbol).Msg("failed to store sample")
			case !inserted:
				duplicates++
			default:
				stored++
				if s.mirror != nil {
					if err := s.mirror.Append(sample); err != nil {
						s.logger.Error().Err(err).Str("symbol", quote.Symbol).Msg("csv mirror write failed")
					}
				}
			}
		}

		s.evaluateAlert(ctx, quote)
	}

	s.logger.Info().
		Int64("cycle", cycle).
		Int("fetched", len(quotes)).
		Int("stored", stored).
		Int("duplicates", duplicates).
		Int("failed", len(failed)).
		Msg("cycle complete")

	s.maybeCleanup(ctx, cycleStart)
	return nil
}

func (s *Service) evaluateAlert(ctx context.Context, quote fetcher.Quote) {
	alert := s.engine.Evaluate(quote.Symbol, quote.AssetType, quote.Price, time.Now().UTC())
	if alert == nil {
		return
	}

	var channels []string
	if s.dispatcher != nil {
		channels = s.dispatcher.Dispatch(ctx, *alert)
	}

	s.logger.Info().
		Str("symbol", alert.Symbol).
		Str("change_pct", alert.ChangePct.StringFixed(2)).
		Str("direction", alert.Direction).
		Strs("channels", channels).
		Msg("alert dispatched")

	if s.alertStore != nil {
		record := storage.AlertRecord{
			Symbol:       alert.Symbol,
			Price:        alert.Price,
			ChangePct:    alert.ChangePct,
			ThresholdPct: alert.ThresholdPct,
			Direction:    alert.Direction,
			Channels:     channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("symbol", alert.Symbol).Msg("failed to persist alert record")
		}
	}
}

// maybeCleanup runs the daily retention sweep once 24h elapsed since the last.
func (s *Service) maybeCleanup(ctx context.Context, now time.Time) {
	if s.store == nil || s.retention <= 0 {
		return
	}

	s.mu.Lock()
	due := s.lastCleanup.IsZero() || now.Sub(s.lastCleanup) >= 24*time.Hour
	if due {
		s.lastCleanup = now
	}
	s.mu.Unlock()
	if !due {
		return
	}

	cutoff := now.Add(-s.retention)
	removed, err := s.store.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("retention cleanup failed")
		return
	}
	s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("retention cleanup complete")
}

func (s *Service) nextCycle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cycle := s.cycles
	s.cycles++
	return cycle
}

// SimulatedQuote drives the pipeline once for the simulate-alert command.
type SimulatedQuote struct {
	Symbol    string
	AssetType string
	Baseline  decimal.Decimal
	Price     decimal.Decimal
}

// Simulate replays a baseline then a follow-up price through the alert
// engine and dispatches any resulting alert.
func (s *Service) Simulate(ctx context.Context, sim SimulatedQuote) error {
	now := time.Now().UTC()
	s.engine.Seed(sim.Symbol, sim.Baseline)

	alert := s.engine.Evaluate(sim.Symbol, sim.AssetType, sim.Price, now)
	if alert == nil {
		s.logger.Info().
			Str("symbol", sim.Symbol).
			Msg("simulated move did not cross the threshold")
		return nil
	}

	if s.dispatcher == nil {
		return fmt.Errorf("no alert channels configured")
	}

	delivered := s.dispatcher.Dispatch(ctx, *alert)
	if len(delivered) == 0 {
		return fmt.Errorf("all alert channels failed")
	}
	return nil
}
