package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSampleSQL = `INSERT INTO price_samples (
        symbol,
        price,
        change_24h,
        asset_type,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (symbol, observed_at) DO NOTHING;`

	listRangeSQL = `SELECT
        symbol,
        price,
        change_24h,
        asset_type,
        observed_at,
        created_at
    FROM price_samples
    WHERE symbol = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listRecentSamplesSQL = `SELECT
        symbol,
        price,
        change_24h,
        asset_type,
        observed_at,
        created_at
    FROM price_samples
    ORDER BY observed_at DESC
    LIMIT $1;`

	latestPerSymbolSQL = `SELECT DISTINCT ON (symbol)
        symbol,
        price,
        change_24h,
        asset_type,
        observed_at,
        created_at
    FROM price_samples
    ORDER BY symbol, observed_at DESC;`

	latestBySymbolSQL = `SELECT
        symbol,
        price,
        change_24h,
        asset_type,
        observed_at,
        created_at
    FROM price_samples
    WHERE symbol = $1
    ORDER BY observed_at DESC
    LIMIT 1;`

	statsSQL = `SELECT
        COUNT(*),
        COUNT(DISTINCT symbol),
        MIN(observed_at),
        MAX(observed_at)
    FROM price_samples;`

	deleteSamplesBeforeSQL = `DELETE FROM price_samples WHERE observed_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        symbol,
        price,
        change_pct,
        threshold_pct,
        direction,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, symbol, price, change_pct, threshold_pct, direction, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        symbol,
        price,
        change_pct,
        threshold_pct,
        direction,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`
)

// SampleStore defines operations for price sample persistence.
type SampleStore interface {
	AppendSample(ctx context.Context, sample PriceSample) (bool, error)
	ListRange(ctx context.Context, symbol string, from, to time.Time) ([]PriceSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error)
	LatestPerSymbol(ctx context.Context) ([]PriceSample, error)
	LatestBySymbol(ctx context.Context, symbol string) (*PriceSample, error)
	CollectStats(ctx context.Context) (Stats, error)
	DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to price samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AppendSample persists a sample unless an identical (symbol, observed_at)
// row already exists. Returns true when the row was inserted.
func (s *Store) AppendSample(ctx context.Context, sample PriceSample) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cmdTag, execErr := pool.Exec(ctx, insertSampleSQL,
		sample.Symbol,
		sample.Price.String(),
		sample.Change24h.String(),
		sample.AssetType,
		sample.ObservedAt,
	)
	if execErr != nil {
		return false, fmt.Errorf("append sample: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// ListRange lists samples for a symbol within a time window, ascending.
func (s *Store) ListRange(ctx context.Context, symbol string, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRangeSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list range: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples ordered by descending time.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

// LatestPerSymbol returns the newest sample for every tracked symbol.
func (s *Store) LatestPerSymbol(ctx context.Context) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestPerSymbolSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("latest per symbol: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// LatestBySymbol returns the newest sample for one symbol, or nil when none exists.
func (s *Store) LatestBySymbol(ctx context.Context, symbol string) (*PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestBySymbolSQL, symbol)
	if queryErr != nil {
		return nil, fmt.Errorf("latest by symbol: %w", queryErr)
	}
	defer rows.Close()

	samples, err := collectSamples(rows, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[0], nil
}

// CollectStats counts stored samples and distinct assets.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	pool, err := s.getPool()
	if err != nil {
		return Stats{}, err
	}

	var (
		stats  Stats
		first  *time.Time
		latest *time.Time
	)
	if scanErr := pool.QueryRow(ctx, statsSQL).Scan(&stats.TotalEntries, &stats.UniqueAssets, &first, &latest); scanErr != nil {
		return Stats{}, fmt.Errorf("collect stats: %w", scanErr)
	}
	stats.FirstEntry = first
	stats.LatestEntry = latest
	return stats, nil
}

// DeleteSamplesBefore removes samples observed before the cutoff and reports
// how many rows were deleted.
func (s *Store) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	cmdTag, execErr := pool.Exec(ctx, deleteSamplesBeforeSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("delete samples before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Symbol,
		alert.Price.String(),
		alert.ChangePct.String(),
		alert.ThresholdPct.String(),
		alert.Direction,
		alert.Channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows, sizeHint int) ([]PriceSample, error) {
	samples := make([]PriceSample, 0, sizeHint)
	for rows.Next() {
		sample, scanErr := scanSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanSample(rows pgx.Rows) (PriceSample, error) {
	var (
		symbol     string
		priceStr   string
		changeStr  string
		assetType  string
		observedAt time.Time
		createdAt  time.Time
	)

	if err := rows.Scan(&symbol, &priceStr, &changeStr, &assetType, &observedAt, &createdAt); err != nil {
		return PriceSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}
	change, err := decimal.NewFromString(changeStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse change_24h: %w", err)
	}

	return PriceSample{
		Symbol:     symbol,
		Price:      price,
		Change24h:  change,
		AssetType:  assetType,
		ObservedAt: observedAt,
		CreatedAt:  createdAt,
	}, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec          AlertRecord
		priceStr     string
		changeStr    string
		thresholdStr string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.Symbol,
		&priceStr,
		&changeStr,
		&thresholdStr,
		&rec.Direction,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.Price, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse price: %w", convErr)
	}
	rec.ChangePct, convErr = decimal.NewFromString(changeStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse change pct: %w", convErr)
	}
	rec.ThresholdPct, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold pct: %w", convErr)
	}

	return rec, nil
}
