package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/google/uuid"
)

// AppendLedgerEntry appends one cash movement. balance_after is informative;
// the ledger is always re-summed on read.
func (s *SQLiteStorage) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.AppendLedgerEntry: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertLedger(ctx, tx, entry); err != nil {
		return fmt.Errorf("storage.AppendLedgerEntry: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) insertLedger(ctx context.Context, tx *sql.Tx, e domain.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	var balance float64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM bankroll_log`).Scan(&balance); err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bankroll_log (id, cycle, entry_type, amount, balance_after, market_id, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Cycle, string(e.Kind), e.Amount, balance+e.Amount, e.MarketID, e.Description, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// LedgerEntries returns every ledger row in insertion order.
func (s *SQLiteStorage) LedgerEntries(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cycle, entry_type, amount, COALESCE(market_id, ''), COALESCE(description, ''), created_at
		 FROM bankroll_log ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.LedgerEntries: query: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e    domain.LedgerEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Cycle, &kind, &e.Amount, &e.MarketID, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage.LedgerEntries: scan: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordAPICost writes the cost row and its ledger debit in one tx.
func (s *SQLiteStorage) RecordAPICost(ctx context.Context, cost domain.APICost, entry domain.LedgerEntry) error {
	if cost.CreatedAt.IsZero() {
		cost.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.RecordAPICost: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO api_cost_log (cycle, market_id, provider, cost_usd, created_at) VALUES (?, ?, ?, ?, ?)`,
		cost.Cycle, cost.MarketID, cost.Provider, cost.CostUSD, cost.CreatedAt,
	); err != nil {
		return fmt.Errorf("storage.RecordAPICost: insert cost: %w", err)
	}
	if err := s.insertLedger(ctx, tx, entry); err != nil {
		return fmt.Errorf("storage.RecordAPICost: %w", err)
	}
	return tx.Commit()
}

// RecordPeak appends value as the new high-water mark if it beats the current one.
func (s *SQLiteStorage) RecordPeak(ctx context.Context, cycle int64, value float64) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO peak_bankroll (cycle, value, recorded_at)
		 SELECT ?, ?, ?
		 WHERE ? > (SELECT COALESCE(MAX(value), 0) FROM peak_bankroll)`,
		cycle, value, s.now(), value,
	); err != nil {
		return fmt.Errorf("storage.RecordPeak: %w", err)
	}
	return nil
}

// PeakBankroll returns the highest recorded bankroll, 0 when none.
func (s *SQLiteStorage) PeakBankroll(ctx context.Context) (float64, error) {
	var peak float64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(value), 0) FROM peak_bankroll`).Scan(&peak); err != nil {
		return 0, fmt.Errorf("storage.PeakBankroll: %w", err)
	}
	return peak, nil
}
