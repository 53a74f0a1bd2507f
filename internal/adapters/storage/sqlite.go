package storage

// sqlite.go: historial de runs (backtest, walk-forward y paper).
//
// Estrategia:
//   - `runs`: una fila por ejecución con las métricas principales en columnas
//     y el reporte completo en JSON (exit reasons, reason stats).
//   - `trades`: los trades cerrados de cada run, en orden de cierre.
//   - `reason_stats`: agregados por reason code y run, para comparar qué
//     reasons funcionan entre runs sin deserializar reportes.
//   - Prune automático al arrancar: runs > 90d con sus trades.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    mode          TEXT    NOT NULL,
    strategy      TEXT    NOT NULL,
    label         TEXT    NOT NULL DEFAULT '',
    started_at    TEXT    NOT NULL,
    trades        INTEGER NOT NULL DEFAULT 0,
    win_rate      REAL    NOT NULL DEFAULT 0,
    profit_factor REAL    NOT NULL DEFAULT 0,
    sharpe        REAL    NOT NULL DEFAULT 0,
    max_drawdown  REAL    NOT NULL DEFAULT 0,
    total_pnl     REAL    NOT NULL DEFAULT 0,
    final_capital REAL    NOT NULL DEFAULT 0,
    frozen        INTEGER NOT NULL DEFAULT 0,
    report_json   TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    run_id       TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq          INTEGER NOT NULL,
    position_id  TEXT    NOT NULL,
    instrument   TEXT    NOT NULL,
    direction    TEXT    NOT NULL,
    reason       TEXT    NOT NULL,
    strategy     TEXT    NOT NULL,
    entry_price  REAL    NOT NULL,
    exit_price   REAL    NOT NULL,
    size         REAL    NOT NULL,
    fees         REAL    NOT NULL DEFAULT 0,
    realized_pnl REAL    NOT NULL DEFAULT 0,
    exit_reason  TEXT    NOT NULL,
    opened_at    TEXT    NOT NULL,
    closed_at    TEXT    NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS reason_stats (
    run_id    TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    reason    TEXT    NOT NULL,
    count     INTEGER NOT NULL DEFAULT 0,
    wins      INTEGER NOT NULL DEFAULT 0,
    losses    INTEGER NOT NULL DEFAULT 0,
    blocked   INTEGER NOT NULL DEFAULT 0,
    total_pnl REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, reason)
);

CREATE INDEX IF NOT EXISTS idx_runs_started  ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_reason ON trades(reason);
`

const (
	retentionRuns = 90 * 24 * time.Hour
	// ancho fijo para que el orden de texto sea el orden temporal
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteStorage implementa ports.RunStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia runs antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveRun persiste el run, sus trades y las reason stats en una transacción.
// Guardar dos veces el mismo ID reemplaza el run anterior.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run domain.RunRecord, trades []domain.Trade) error {
	if run.ID == "" {
		return errors.New("storage.SaveRun: empty run id")
	}
	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("storage.SaveRun: replace %s: %w", run.ID, err)
	}

	rep := run.Report
	frozen := 0
	if rep.Frozen {
		frozen = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
			(id, mode, strategy, label, started_at, trades, win_rate, profit_factor,
			 sharpe, max_drawdown, total_pnl, final_capital, frozen, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Strategy, run.Label, run.StartedAt.UTC().Format(timeLayout),
		rep.Trades, rep.WinRate, rep.ProfitFactor, rep.Sharpe, rep.MaxDrawdown,
		rep.TotalPnL, rep.FinalCapital, frozen, string(reportJSON),
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert run: %w", err)
	}

	if len(trades) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO trades
				(run_id, seq, position_id, instrument, direction, reason, strategy,
				 entry_price, exit_price, size, fees, realized_pnl, exit_reason,
				 opened_at, closed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
		}
		defer stmt.Close()

		for i, t := range trades {
			if _, err := stmt.ExecContext(ctx,
				run.ID, i+1, t.ID, t.Instrument, string(t.Direction), string(t.Reason), t.Strategy,
				t.EntryPrice, t.ExitPrice, t.Size, t.Fees, t.RealizedPnL, string(t.ExitReason),
				t.OpenedAt.UTC().Format(timeLayout), t.ClosedAt.UTC().Format(timeLayout),
			); err != nil {
				return fmt.Errorf("storage.SaveRun: insert trade %s: %w", t.ID, err)
			}
		}
	}

	for code, st := range rep.ReasonStats {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reason_stats (run_id, reason, count, wins, losses, blocked, total_pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(code), st.Count, st.Wins, st.Losses, st.Blocked, st.TotalPnL,
		); err != nil {
			return fmt.Errorf("storage.SaveRun: insert reason %s: %w", code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// Runs devuelve los últimos runs, el más reciente primero.
func (s *SQLiteStorage) Runs(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, strategy, label, started_at, report_json
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Runs: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		var startedAt, reportJSON string
		if err := rows.Scan(&r.ID, &r.Mode, &r.Strategy, &r.Label, &startedAt, &reportJSON); err != nil {
			return nil, fmt.Errorf("storage.Runs: scan row: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		if err := json.Unmarshal([]byte(reportJSON), &r.Report); err != nil {
			return nil, fmt.Errorf("storage.Runs: decode report %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Trades devuelve los trades de un run en orden de cierre.
func (s *SQLiteStorage) Trades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, instrument, direction, reason, strategy, entry_price,
		       exit_price, size, fees, realized_pnl, exit_reason, opened_at, closed_at
		FROM trades
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var dir, reason, exitReason, openedAt, closedAt string
		if err := rows.Scan(
			&t.ID, &t.Instrument, &dir, &reason, &t.Strategy, &t.EntryPrice,
			&t.ExitPrice, &t.Size, &t.Fees, &t.RealizedPnL, &exitReason, &openedAt, &closedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan row: %w", err)
		}
		t.Direction = domain.Direction(dir)
		t.Reason = domain.Reason(reason)
		t.ExitReason = domain.ExitReason(exitReason)
		t.OpenedAt, _ = time.Parse(timeLayout, openedAt)
		t.ClosedAt, _ = time.Parse(timeLayout, closedAt)
		t.Duration = t.ClosedAt.Sub(t.OpenedAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ReasonTotals suma las reason stats de todos los runs guardados,
// ordenadas por P&L total desc.
func (s *SQLiteStorage) ReasonTotals(ctx context.Context) ([]domain.ReasonStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reason, SUM(count), SUM(wins), SUM(losses), SUM(blocked), SUM(total_pnl)
		FROM reason_stats
		GROUP BY reason
		ORDER BY SUM(total_pnl) DESC, reason`)
	if err != nil {
		return nil, fmt.Errorf("storage.ReasonTotals: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ReasonStats
	for rows.Next() {
		var st domain.ReasonStats
		var code string
		if err := rows.Scan(&code, &st.Count, &st.Wins, &st.Losses, &st.Blocked, &st.TotalPnL); err != nil {
			return nil, fmt.Errorf("storage.ReasonTotals: scan row: %w", err)
		}
		st.Reason = domain.Reason(code)
		if decided := st.Wins + st.Losses; decided > 0 {
			st.WinRate = float64(st.Wins) / float64(decided)
		}
		if st.Count > 0 {
			st.AvgPnL = st.TotalPnL / float64(st.Count)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina runs antiguos; trades y reason stats caen por cascade.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionRuns).Format(timeLayout)
	s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
}
