package storage

// sqlite.go: durable store of record for the trading loop.
//
// Layout:
//   - `bankroll_log`: append-only ledger. Cash is always SUM(amount).
//   - `positions` + `trades`: entries and exits, written in one tx with their
//     ledger row so a trade is never half-recorded.
//   - `cycle_log`: one row per cycle; next cycle = MAX(cycle_number) + 1.
//   - `weather_*`: model snapshots, resolved highs and fitted calibration.
//
// Schema changes go through the ordered `migrations` list. Each step runs in
// its own tx and is safe to re-run.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{1, "ledger", execAll(
		`CREATE TABLE IF NOT EXISTS bankroll_log (
			id            TEXT PRIMARY KEY,
			cycle         INTEGER  NOT NULL DEFAULT 0,
			entry_type    TEXT     NOT NULL,
			amount        REAL     NOT NULL,
			balance_after REAL     NOT NULL,
			market_id     TEXT,
			description   TEXT,
			created_at    DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bankroll_created ON bankroll_log(created_at)`,
		`CREATE TABLE IF NOT EXISTS api_cost_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle      INTEGER  NOT NULL,
			market_id  TEXT,
			provider   TEXT,
			cost_usd   REAL     NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS peak_bankroll (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle       INTEGER  NOT NULL,
			value       REAL     NOT NULL,
			recorded_at DATETIME NOT NULL
		)`,
	)},
	{2, "positions", execAll(
		`CREATE TABLE IF NOT EXISTS positions (
			id                TEXT PRIMARY KEY,
			market_id         TEXT     NOT NULL,
			question          TEXT,
			token_id          TEXT,
			side              TEXT     NOT NULL,
			entry_price       REAL     NOT NULL,
			shares            REAL     NOT NULL,
			cost_usd          REAL     NOT NULL,
			correlation_group TEXT,
			entry_probability REAL     NOT NULL DEFAULT 0,
			weather           INTEGER  NOT NULL DEFAULT 0,
			status            TEXT     NOT NULL,
			opened_at         DATETIME NOT NULL,
			current_price     REAL     NOT NULL DEFAULT 0,
			marked_at         DATETIME,
			exit_reason       TEXT,
			exit_price        REAL     NOT NULL DEFAULT 0,
			realized_pnl      REAL     NOT NULL DEFAULT 0,
			closed_at         DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id          TEXT PRIMARY KEY,
			position_id TEXT     NOT NULL,
			cycle       INTEGER  NOT NULL DEFAULT 0,
			market_id   TEXT     NOT NULL,
			question    TEXT,
			side        TEXT     NOT NULL,
			action      TEXT     NOT NULL,
			price       REAL     NOT NULL,
			shares      REAL     NOT NULL,
			size_usd    REAL     NOT NULL,
			edge        REAL     NOT NULL DEFAULT 0,
			reason      TEXT,
			paper       INTEGER  NOT NULL DEFAULT 1,
			created_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at)`,
	)},
	{3, "cycles", execAll(
		`CREATE TABLE IF NOT EXISTS cycle_log (
			cycle_number      INTEGER PRIMARY KEY,
			markets_scanned   INTEGER  NOT NULL DEFAULT 0,
			markets_evaluated INTEGER  NOT NULL DEFAULT 0,
			markets_skipped   INTEGER  NOT NULL DEFAULT 0,
			trades_placed     INTEGER  NOT NULL DEFAULT 0,
			positions_exited  INTEGER  NOT NULL DEFAULT 0,
			api_cost_usd      REAL     NOT NULL DEFAULT 0,
			bankroll_before   REAL     NOT NULL DEFAULT 0,
			bankroll_after    REAL     NOT NULL DEFAULT 0,
			drawdown_active   INTEGER  NOT NULL DEFAULT 0,
			started_at        DATETIME NOT NULL,
			finished_at       DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cycle_opportunities (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle             INTEGER  NOT NULL,
			market_id         TEXT     NOT NULL,
			question          TEXT,
			weather           INTEGER  NOT NULL DEFAULT 0,
			status            TEXT     NOT NULL,
			reject_reason     TEXT,
			side              TEXT,
			model_probability REAL     NOT NULL DEFAULT 0,
			market_price      REAL     NOT NULL DEFAULT 0,
			edge              REAL     NOT NULL DEFAULT 0,
			size_usd          REAL     NOT NULL DEFAULT 0,
			detail            TEXT,
			created_at        DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_opp_cycle ON cycle_opportunities(cycle)`,
		`CREATE TABLE IF NOT EXISTS death_reports (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle       INTEGER  NOT NULL,
			cause       TEXT     NOT NULL,
			report_json TEXT     NOT NULL,
			created_at  DATETIME NOT NULL
		)`,
	)},
	{4, "weather", execAll(
		`CREATE TABLE IF NOT EXISTS weather_snapshots (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle         INTEGER  NOT NULL,
			city          TEXT     NOT NULL,
			target_date   TEXT     NOT NULL,
			ensemble_mean REAL     NOT NULL,
			ensemble_std  REAL     NOT NULL,
			anchor_high   REAL,
			members       INTEGER  NOT NULL,
			created_at    DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_key ON weather_snapshots(city, target_date)`,
		`CREATE TABLE IF NOT EXISTS weather_actuals (
			city          TEXT     NOT NULL,
			target_date   TEXT     NOT NULL,
			actual_high   REAL     NOT NULL,
			ensemble_mean REAL,
			anchor_high   REAL,
			source        TEXT     NOT NULL DEFAULT 'organic',
			recorded_at   DATETIME NOT NULL,
			PRIMARY KEY (city, target_date)
		)`,
		`CREATE TABLE IF NOT EXISTS weather_calibration (
			city          TEXT PRIMARY KEY,
			bias_offset   REAL     NOT NULL,
			spread_factor REAL     NOT NULL,
			observations  INTEGER  NOT NULL,
			updated_at    DATETIME NOT NULL
		)`,
	)},
	{5, "position probability mark", func(ctx context.Context, tx *sql.Tx) error {
		return addColumnIfMissing(ctx, tx, "positions", "current_probability", "REAL")
	}},
	{6, "aborted cycles", func(ctx context.Context, tx *sql.Tx) error {
		return addColumnIfMissing(ctx, tx, "cycle_log", "aborted", "INTEGER NOT NULL DEFAULT 0")
	}},
}

// SQLiteStorage implements ports.Store on SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage opens (or creates) the database at path and applies any
// pending migrations.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies pending migrations in order. Running it again is a no-op.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT     NOT NULL,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return fmt.Errorf("storage.Migrate: create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("storage.Migrate: read versions: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("storage.Migrate: scan version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
		slog.Debug("migration applied", "version", m.version, "name", m.name)
	}
	return nil
}

func (s *SQLiteStorage) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Migrate %d: begin tx: %w", m.version, err)
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx); err != nil {
		return fmt.Errorf("storage.Migrate %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, s.now(),
	); err != nil {
		return fmt.Errorf("storage.Migrate %d: record version: %w", m.version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("storage.SchemaVersion: %w", err)
	}
	return int(v.Int64), nil
}

// Close closes the database cleanly.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func execAll(stmts ...string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
