package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// SaveSnapshot stores the model output for a (city, date) in a cycle.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap domain.WeatherSnapshot) error {
	created := snap.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_snapshots (cycle, city, target_date, ensemble_mean, ensemble_std, anchor_high, members, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Cycle, snap.City, snap.Date, snap.EnsembleMean, snap.EnsembleStd, nullFloat(snap.AnchorHigh), snap.Members, created,
	); err != nil {
		return fmt.Errorf("storage.SaveSnapshot %s %s: %w", snap.City, snap.Date, err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot of a (city, date).
func (s *SQLiteStorage) LatestSnapshot(ctx context.Context, city, date string) (domain.WeatherSnapshot, error) {
	var (
		snap   domain.WeatherSnapshot
		anchor sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT cycle, city, target_date, ensemble_mean, ensemble_std, anchor_high, members, created_at
		 FROM weather_snapshots WHERE city = ? AND target_date = ? ORDER BY id DESC LIMIT 1`,
		city, date,
	).Scan(&snap.Cycle, &snap.City, &snap.Date, &snap.EnsembleMean, &snap.EnsembleStd, &anchor, &snap.Members, &snap.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.WeatherSnapshot{}, fmt.Errorf("storage.LatestSnapshot %s %s: %w", city, date, domain.ErrNotFound)
		}
		return domain.WeatherSnapshot{}, fmt.Errorf("storage.LatestSnapshot: %w", err)
	}
	snap.AnchorHigh = floatPtr(anchor)
	return snap, nil
}

// PendingActuals lists snapshot keys dated before `before` with no actual yet.
func (s *SQLiteStorage) PendingActuals(ctx context.Context, before string) ([]domain.ForecastKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT s.city, s.target_date
		 FROM weather_snapshots s
		 LEFT JOIN weather_actuals a ON a.city = s.city AND a.target_date = s.target_date
		 WHERE s.target_date < ? AND a.city IS NULL
		 ORDER BY s.target_date, s.city`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.PendingActuals: %w", err)
	}
	defer rows.Close()

	var keys []domain.ForecastKey
	for rows.Next() {
		var k domain.ForecastKey
		if err := rows.Scan(&k.City, &k.Date); err != nil {
			return nil, fmt.Errorf("storage.PendingActuals: scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SaveActual upserts a resolved daily high.
func (s *SQLiteStorage) SaveActual(ctx context.Context, a domain.WeatherActual) error {
	source := "organic"
	if a.Backfilled {
		source = "backfill"
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_actuals (city, target_date, actual_high, ensemble_mean, anchor_high, source, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(city, target_date) DO UPDATE SET
			actual_high = excluded.actual_high,
			ensemble_mean = excluded.ensemble_mean,
			anchor_high = excluded.anchor_high,
			source = excluded.source,
			recorded_at = excluded.recorded_at`,
		a.City, a.Date, a.ActualHigh, nullFloat(a.EnsembleMean), nullFloat(a.AnchorHigh), source, s.now(),
	); err != nil {
		return fmt.Errorf("storage.SaveActual %s %s: %w", a.City, a.Date, err)
	}
	return nil
}

// Actuals returns every resolved high.
func (s *SQLiteStorage) Actuals(ctx context.Context) ([]domain.WeatherActual, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city, target_date, actual_high, ensemble_mean, anchor_high, source
		 FROM weather_actuals ORDER BY target_date, city`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Actuals: %w", err)
	}
	defer rows.Close()

	var out []domain.WeatherActual
	for rows.Next() {
		var (
			a              domain.WeatherActual
			ensemble, anch sql.NullFloat64
			source         string
		)
		if err := rows.Scan(&a.City, &a.Date, &a.ActualHigh, &ensemble, &anch, &source); err != nil {
			return nil, fmt.Errorf("storage.Actuals: scan: %w", err)
		}
		a.EnsembleMean = floatPtr(ensemble)
		a.AnchorHigh = floatPtr(anch)
		a.Backfilled = source == "backfill"
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveCalibration replaces the stored per-city parameters.
func (s *SQLiteStorage) SaveCalibration(ctx context.Context, params []domain.CalibrationParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveCalibration: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for _, p := range params {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO weather_calibration (city, bias_offset, spread_factor, observations, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(city) DO UPDATE SET
				bias_offset = excluded.bias_offset,
				spread_factor = excluded.spread_factor,
				observations = excluded.observations,
				updated_at = excluded.updated_at`,
			p.City, p.BiasOffset, p.SpreadFactor, p.Observations, now,
		); err != nil {
			return fmt.Errorf("storage.SaveCalibration %s: %w", p.City, err)
		}
	}
	return tx.Commit()
}

// Calibrations returns the stored parameters keyed by city.
func (s *SQLiteStorage) Calibrations(ctx context.Context) (map[string]domain.CalibrationParams, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city, bias_offset, spread_factor, observations FROM weather_calibration`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Calibrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.CalibrationParams)
	for rows.Next() {
		var p domain.CalibrationParams
		if err := rows.Scan(&p.City, &p.BiasOffset, &p.SpreadFactor, &p.Observations); err != nil {
			return nil, fmt.Errorf("storage.Calibrations: scan: %w", err)
		}
		out[p.City] = p
	}
	return out, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
