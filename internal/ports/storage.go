package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// Ledger is the append-only record of cash movements.
type Ledger interface {
	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	LedgerEntries(ctx context.Context) ([]domain.LedgerEntry, error)

	// RecordAPICost writes the cost log row and its ledger debit atomically.
	RecordAPICost(ctx context.Context, cost domain.APICost, entry domain.LedgerEntry) error

	// RecordPeak appends a new high-water mark. Values not above the current
	// peak are ignored, so the peak never decreases.
	RecordPeak(ctx context.Context, cycle int64, value float64) error
	PeakBankroll(ctx context.Context) (float64, error)
}

// PositionStore persists positions and the trade log.
type PositionStore interface {
	// CommitEntry stores a filled buy: trade, new position and ledger debit,
	// in one transaction.
	CommitEntry(ctx context.Context, trade domain.TradeRecord, pos domain.Position, entry domain.LedgerEntry) error

	// CommitExit stores a filled sell: trade, position close and ledger
	// credit, in one transaction.
	CommitExit(ctx context.Context, trade domain.TradeRecord, exit domain.ExitDecision, realizedPnL float64, entry domain.LedgerEntry) error

	OpenPositions(ctx context.Context) ([]domain.Position, error)
	ClosedPositions(ctx context.Context) ([]domain.Position, error)
	UpdateMark(ctx context.Context, positionID string, price float64, probability *float64, at time.Time) error
	Trades(ctx context.Context) ([]domain.TradeRecord, error)
}

// CycleStore persists per-cycle records.
type CycleStore interface {
	// NextCycleNumber returns max(cycle_number) + 1, or 1 on an empty store.
	NextCycleNumber(ctx context.Context) (int64, error)
	AppendCycle(ctx context.Context, rec domain.CycleRecord) error
	RecentCycles(ctx context.Context, n int) ([]domain.CycleRecord, error)
	SaveDecisions(ctx context.Context, decisions []domain.Decision) error
	SaveDeathReport(ctx context.Context, report domain.DeathReport) error
	// LatestDeathReport returns domain.ErrNotFound while the ledger is alive.
	LatestDeathReport(ctx context.Context) (domain.DeathReport, error)
}

// WeatherStore persists model snapshots, resolved actuals and calibration.
type WeatherStore interface {
	SaveSnapshot(ctx context.Context, snap domain.WeatherSnapshot) error
	LatestSnapshot(ctx context.Context, city, date string) (domain.WeatherSnapshot, error)

	// PendingActuals lists snapshot keys before the given date that have no
	// resolved actual yet.
	PendingActuals(ctx context.Context, before string) ([]domain.ForecastKey, error)
	SaveActual(ctx context.Context, actual domain.WeatherActual) error
	Actuals(ctx context.Context) ([]domain.WeatherActual, error)

	SaveCalibration(ctx context.Context, params []domain.CalibrationParams) error
	Calibrations(ctx context.Context) (map[string]domain.CalibrationParams, error)
}

// Store is everything the engine persists.
type Store interface {
	Ledger
	PositionStore
	CycleStore
	WeatherStore
	Close() error
}
