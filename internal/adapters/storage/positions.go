package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

const positionColumns = `id, market_id, COALESCE(question, ''), COALESCE(token_id, ''), side,
	entry_price, shares, cost_usd, COALESCE(correlation_group, ''), entry_probability, weather,
	status, opened_at, current_price, current_probability, marked_at,
	COALESCE(exit_reason, ''), exit_price, realized_pnl, closed_at`

// CommitEntry records a filled buy atomically: trade row, open position and
// the ledger debit.
func (s *SQLiteStorage) CommitEntry(ctx context.Context, trade domain.TradeRecord, pos domain.Position, entry domain.LedgerEntry) error {
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CommitEntry: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertTrade(ctx, tx, trade); err != nil {
		return fmt.Errorf("storage.CommitEntry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO positions (id, market_id, question, token_id, side, entry_price, shares, cost_usd,
			correlation_group, entry_probability, weather, status, opened_at, current_price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.ID, pos.MarketID, pos.Question, pos.TokenID, string(pos.Side), pos.EntryPrice, pos.Shares, pos.CostUSD,
		pos.CorrelationGroup, pos.EntryProbability, boolToInt(pos.Weather), string(domain.PositionOpen),
		pos.OpenedAt, pos.EntryPrice,
	); err != nil {
		return fmt.Errorf("storage.CommitEntry: insert position: %w", err)
	}

	if err := s.insertLedger(ctx, tx, entry); err != nil {
		return fmt.Errorf("storage.CommitEntry: %w", err)
	}
	return tx.Commit()
}

// CommitExit records a filled sell atomically: trade row, position close and
// the ledger credit. Closing an already exited position is an error.
func (s *SQLiteStorage) CommitExit(ctx context.Context, trade domain.TradeRecord, exit domain.ExitDecision, realizedPnL float64, entry domain.LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CommitExit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertTrade(ctx, tx, trade); err != nil {
		return fmt.Errorf("storage.CommitExit: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE positions
		 SET status = ?, exit_reason = ?, exit_price = ?, realized_pnl = ?, closed_at = ?, current_price = ?
		 WHERE id = ? AND status = ?`,
		string(domain.PositionExited), string(exit.Reason), exit.Price, realizedPnL, s.now(), exit.Price,
		exit.Position.ID, string(domain.PositionOpen),
	)
	if err != nil {
		return fmt.Errorf("storage.CommitExit: close position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.CommitExit: position %s: %w", exit.Position.ID, domain.ErrNotFound)
	}

	if err := s.insertLedger(ctx, tx, entry); err != nil {
		return fmt.Errorf("storage.CommitExit: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) insertTrade(ctx context.Context, tx *sql.Tx, t domain.TradeRecord) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trades (id, position_id, cycle, market_id, question, side, action, price, shares,
			size_usd, edge, reason, paper, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PositionID, t.Cycle, t.MarketID, t.Question, string(t.Side), string(t.Action), t.Price, t.Shares,
		t.SizeUSD, t.Edge, t.Reason, boolToInt(t.Paper), t.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// OpenPositions returns positions still in the Open state, oldest first.
func (s *SQLiteStorage) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx, `WHERE status = ? ORDER BY opened_at`, string(domain.PositionOpen))
}

// ClosedPositions returns exited positions, oldest first.
func (s *SQLiteStorage) ClosedPositions(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx, `WHERE status = ? ORDER BY closed_at`, string(domain.PositionExited))
}

func (s *SQLiteStorage) queryPositions(ctx context.Context, where string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryPositions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var (
			p                    domain.Position
			side, status, reason string
			weather              int
			prob                 sql.NullFloat64
			markedAt, closedAt   sql.NullTime
		)
		if err := rows.Scan(
			&p.ID, &p.MarketID, &p.Question, &p.TokenID, &side,
			&p.EntryPrice, &p.Shares, &p.CostUSD, &p.CorrelationGroup, &p.EntryProbability, &weather,
			&status, &p.OpenedAt, &p.CurrentPrice, &prob, &markedAt,
			&reason, &p.ExitPrice, &p.RealizedPnL, &closedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.queryPositions: scan: %w", err)
		}
		p.Side = domain.Side(side)
		p.Status = domain.PositionStatus(status)
		p.ExitReason = domain.ExitReason(reason)
		p.Weather = weather == 1
		p.CurrentProbability = floatPtr(prob)
		if markedAt.Valid {
			p.MarkedAt = markedAt.Time
		}
		if closedAt.Valid {
			p.ClosedAt = closedAt.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateMark refreshes the derived mark of an open position. Entry fields are
// never touched.
func (s *SQLiteStorage) UpdateMark(ctx context.Context, positionID string, price float64, probability *float64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE positions SET current_price = ?, current_probability = ?, marked_at = ?
		 WHERE id = ? AND status = ?`,
		price, nullFloat(probability), nullTime(at), positionID, string(domain.PositionOpen),
	); err != nil {
		return fmt.Errorf("storage.UpdateMark: %w", err)
	}
	return nil
}

// Trades returns the full trade log, oldest first.
func (s *SQLiteStorage) Trades(ctx context.Context) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position_id, cycle, market_id, COALESCE(question, ''), side, action, price, shares,
			size_usd, edge, COALESCE(reason, ''), paper, created_at
		 FROM trades ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var (
			t            domain.TradeRecord
			side, action string
			paper        int
		)
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Cycle, &t.MarketID, &t.Question, &side, &action,
			&t.Price, &t.Shares, &t.SizeUSD, &t.Edge, &t.Reason, &paper, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan: %w", err)
		}
		t.Side = domain.Side(side)
		t.Action = domain.TradeAction(action)
		t.Paper = paper == 1
		out = append(out, t)
	}
	return out, rows.Err()
}
