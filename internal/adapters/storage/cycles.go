package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// NextCycleNumber returns MAX(cycle_number) + 1, or 1 on a fresh database.
func (s *SQLiteStorage) NextCycleNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(cycle_number), 0) + 1 FROM cycle_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage.NextCycleNumber: %w", err)
	}
	return n, nil
}

// AppendCycle inserts the cycle summary. Cycle numbers are unique.
func (s *SQLiteStorage) AppendCycle(ctx context.Context, rec domain.CycleRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = s.now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO cycle_log (cycle_number, markets_scanned, markets_evaluated, markets_skipped, trades_placed,
			positions_exited, api_cost_usd, bankroll_before, bankroll_after, drawdown_active, aborted, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CycleNumber, rec.MarketsScanned, rec.MarketsEvaluated, rec.MarketsSkipped, rec.TradesPlaced,
		rec.PositionsExited, rec.APICostUSD, rec.BankrollBefore, rec.BankrollAfter, boolToInt(rec.DrawdownActive),
		boolToInt(rec.Aborted), rec.StartedAt, rec.FinishedAt,
	); err != nil {
		return fmt.Errorf("storage.AppendCycle %d: %w", rec.CycleNumber, err)
	}
	return nil
}

// RecentCycles returns the last n cycles, newest first.
func (s *SQLiteStorage) RecentCycles(ctx context.Context, n int) ([]domain.CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle_number, markets_scanned, markets_evaluated, markets_skipped, trades_placed, positions_exited,
			api_cost_usd, bankroll_before, bankroll_after, drawdown_active, aborted, started_at, finished_at
		 FROM cycle_log ORDER BY cycle_number DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentCycles: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleRecord
	for rows.Next() {
		var (
			r       domain.CycleRecord
			dd      int
			aborted int
		)
		if err := rows.Scan(&r.CycleNumber, &r.MarketsScanned, &r.MarketsEvaluated, &r.MarketsSkipped,
			&r.TradesPlaced, &r.PositionsExited, &r.APICostUSD, &r.BankrollBefore, &r.BankrollAfter, &dd, &aborted,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("storage.RecentCycles: scan: %w", err)
		}
		r.DrawdownActive = dd == 1
		r.Aborted = aborted == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveDecisions stores the per-market audit rows of a cycle in one tx.
func (s *SQLiteStorage) SaveDecisions(ctx context.Context, decisions []domain.Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveDecisions: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cycle_opportunities (cycle, market_id, question, weather, status, reject_reason, side,
			model_probability, market_price, edge, size_usd, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDecisions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range decisions {
		created := d.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		if _, err := stmt.ExecContext(ctx,
			d.Cycle, d.MarketID, d.Question, boolToInt(d.Weather), string(d.Status), string(d.Reason), string(d.Side),
			d.ModelProbability, d.MarketPrice, d.Edge, d.SizeUSD, d.Detail, created,
		); err != nil {
			return fmt.Errorf("storage.SaveDecisions %s: %w", d.MarketID, err)
		}
	}
	return tx.Commit()
}

// CountDecisions returns how many audit rows a cycle has, by status.
func (s *SQLiteStorage) CountDecisions(ctx context.Context, cycle int64) (map[domain.DecisionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM cycle_opportunities WHERE cycle = ? GROUP BY status`, cycle,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.CountDecisions: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.DecisionStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("storage.CountDecisions: scan: %w", err)
		}
		out[domain.DecisionStatus(status)] = n
	}
	return out, rows.Err()
}

// SaveDeathReport persists the full report as JSON so it survives the process.
func (s *SQLiteStorage) SaveDeathReport(ctx context.Context, report domain.DeathReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("storage.SaveDeathReport: marshal: %w", err)
	}
	created := report.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO death_reports (cycle, cause, report_json, created_at) VALUES (?, ?, ?, ?)`,
		report.Cycle, report.Cause, string(data), created,
	); err != nil {
		return fmt.Errorf("storage.SaveDeathReport: %w", err)
	}
	return nil
}

// LatestDeathReport returns the last persisted report, domain.ErrNotFound when
// the bot never died.
func (s *SQLiteStorage) LatestDeathReport(ctx context.Context) (domain.DeathReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM death_reports ORDER BY id DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return domain.DeathReport{}, fmt.Errorf("storage.LatestDeathReport: %w", domain.ErrNotFound)
		}
		return domain.DeathReport{}, fmt.Errorf("storage.LatestDeathReport: %w", err)
	}
	var report domain.DeathReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return domain.DeathReport{}, fmt.Errorf("storage.LatestDeathReport: unmarshal: %w", err)
	}
	return report, nil
}
