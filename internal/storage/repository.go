package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pump-dump-alerts/internal/detector"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	insertAlertSQL = `INSERT INTO alerts (
        symbol,
        direction,
        window_sec,
        return_pct,
        price_from,
        price_to,
        window_volume,
        spike_ratio,
        spread_pct,
        bid_notional,
        oi_change_pct,
        alert_ts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        symbol,
        direction,
        window_sec,
        return_pct,
        price_from,
        price_to,
        window_volume,
        spike_ratio,
        spread_pct,
        bid_notional,
        oi_change_pct,
        alert_ts,
        created_at
    FROM alerts
    ORDER BY alert_ts DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT
        id,
        symbol,
        direction,
        window_sec,
        return_pct,
        price_from,
        price_to,
        window_volume,
        spike_ratio,
        spread_pct,
        bid_notional,
        oi_change_pct,
        alert_ts,
        created_at
    FROM alerts
    WHERE alert_ts >= $1
      AND alert_ts < $2
    ORDER BY alert_ts;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE alert_ts < $1;`

	countAlertsSQL = `SELECT COUNT(*) FROM alerts;`
)

// AlertStore defines operations for alert persistence.
type AlertStore interface {
	SaveAlert(ctx context.Context, event detector.AlertEvent) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
	CountAlerts(ctx context.Context) (int64, error)
}

// Store persists alert decisions in PostgreSQL.
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

// SaveAlert records a decided alert. Unbounded spike ratios are stored as
// NULL, same as a missing OI context.
func (s *Store) SaveAlert(ctx context.Context, event detector.AlertEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var spike interface{}
	if !event.SpikeUnbound {
		spike = event.SpikeRatio.String()
	}

	var oiPct interface{}
	if event.OI != nil {
		oiPct = event.OI.Pct.String()
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		event.Symbol,
		string(event.Direction),
		int64(event.Window/time.Second),
		event.ReturnPct().String(),
		event.PriceFrom.String(),
		event.PriceTo.String(),
		event.WindowVolume.String(),
		spike,
		event.SpreadPct.String(),
		event.BidNotional.String(),
		oiPct,
		event.Time,
	)
	if execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists the most recent alerts ordered by descending time.
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

	return collectAlerts(rows, limit)
}

// ListAlertsBetween lists alerts within [from, to) ordered by time.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, 0)
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts: %w", execErr)
	}
	return nil
}

// CountAlerts counts stored alerts.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

func collectAlerts(rows pgx.Rows, sizeHint int) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0, sizeHint)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec          AlertRecord
		returnStr    string
		priceFromStr string
		priceToStr   string
		volumeStr    string
		spreadStr    string
		notionalStr  string
		spikeStr     *string
		oiStr        *string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.Direction,
		&rec.WindowSec,
		&returnStr,
		&priceFromStr,
		&priceToStr,
		&volumeStr,
		&spikeStr,
		&spreadStr,
		&notionalStr,
		&oiStr,
		&rec.AlertTS,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, fmt.Errorf("scan alert: %w", err)
	}

	fields := []struct {
		dst  *decimal.Decimal
		src  string
		name string
	}{
		{&rec.ReturnPct, returnStr, "return_pct"},
		{&rec.PriceFrom, priceFromStr, "price_from"},
		{&rec.PriceTo, priceToStr, "price_to"},
		{&rec.WindowVolume, volumeStr, "window_volume"},
		{&rec.SpreadPct, spreadStr, "spread_pct"},
		{&rec.BidNotional, notionalStr, "bid_notional"},
	}
	for _, f := range fields {
		val, err := decimal.NewFromString(f.src)
		if err != nil {
			return AlertRecord{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = val
	}

	if spikeStr != nil {
		val, err := decimal.NewFromString(*spikeStr)
		if err != nil {
			return AlertRecord{}, fmt.Errorf("parse spike_ratio: %w", err)
		}
		rec.SpikeRatio = &val
	}
	if oiStr != nil {
		val, err := decimal.NewFromString(*oiStr)
		if err != nil {
			return AlertRecord{}, fmt.Errorf("parse oi_change_pct: %w", err)
		}
		rec.OIChangePct = &val
	}

	return rec, nil
}

var _ AlertStore = (*Store)(nil)
