package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"candlelab/internal/pattern"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 backtest_runs/backtest_trades 表。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			symbols_json TEXT NOT NULL,
			trades INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			stats_json TEXT,
			summary_json TEXT,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			pattern TEXT NOT NULL,
			direction TEXT NOT NULL,
			signal_date INTEGER NOT NULL,
			entry_date INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_date INTEGER NOT NULL,
			exit_price REAL NOT NULL,
			exit_reason TEXT NOT NULL,
			gross_return REAL NOT NULL,
			net_return REAL NOT NULL,
			holding_days INTEGER NOT NULL,
			has_recent_earnings INTEGER NOT NULL DEFAULT 0,
			context_json TEXT,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run_symbol ON backtest_trades(run_id, symbol);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	symbolsJSON, err := json.Marshal(run.Symbols)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, status, symbols_json, trades, config_json, stats_json, summary_json,
			message, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, string(symbolsJSON), run.Trades, string(cfgJSON),
		nil, nil, run.Message, now, now, nullableTime(run.CompletedAt))
	return err
}

// UpdateRunStatus 仅更新状态与提示。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, message=?, updated_at=?, completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, now, completed, completed, id)
	return err
}

// UpdateRunSummary 写入最终状态、统计与汇总。
func (s *ResultStore) UpdateRunSummary(ctx context.Context, id, status string, stats RunStats, summary SummarySet, message string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, trades=?, stats_json=?, summary_json=?, message=?, updated_at=?,
		    completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`,
		status, stats.Trades, string(statsJSON), string(summaryJSON), message, now,
		completed, completed, id)
	return err
}

// InsertTrades 批量写入一个 run 的成交记录。
func (s *ResultStore) InsertTrades(ctx context.Context, runID string, trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades
			(run_id, symbol, pattern, direction, signal_date, entry_date, entry_price,
			 exit_date, exit_price, exit_reason, gross_return, net_return,
			 holding_days, has_recent_earnings, context_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, t := range trades {
		var ctxJSON interface{}
		if len(t.Context) > 0 {
			ctxJSON = string(t.Context)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, t.Symbol, string(t.Pattern), string(t.Direction),
			t.SignalDate.UnixMilli(), t.EntryDate.UnixMilli(), t.EntryPrice,
			t.ExitDate.UnixMilli(), t.ExitPrice, string(t.ExitReason),
			t.GrossReturn, t.NetReturn, t.HoldingDays, boolToInt(t.HasRecentEarnings),
			ctxJSON); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, symbols_json, trades, config_json, stats_json, summary_json,
		       message, created_at, updated_at, completed_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, symbols_json, trades, config_json, stats_json, summary_json,
		       message, created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	return scanRun(row)
}

// ListTrades 读取一个 run 的成交；symbol 为空表示全部。
func (s *ResultStore) ListTrades(ctx context.Context, runID, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	query := `
		SELECT id, symbol, pattern, direction, signal_date, entry_date, entry_price,
		       exit_date, exit_price, exit_reason, gross_return, net_return,
		       holding_days, has_recent_earnings, context_json
		FROM backtest_trades
		WHERE run_id=?`
	args := []interface{}{runID}
	if symbol != "" {
		query += ` AND symbol=?`
		args = append(args, symbol)
	}
	query += ` ORDER BY entry_date ASC, id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Trade
	for rows.Next() {
		var t Trade
		var patternStr, directionStr, reasonStr string
		var signalAt, entryAt, exitAt int64
		var earnings int
		var ctxStr sql.NullString
		if err := rows.Scan(&t.ID, &t.Symbol, &patternStr, &directionStr,
			&signalAt, &entryAt, &t.EntryPrice, &exitAt, &t.ExitPrice, &reasonStr,
			&t.GrossReturn, &t.NetReturn, &t.HoldingDays, &earnings, &ctxStr); err != nil {
			return nil, err
		}
		t.RunID = runID
		t.Pattern = pattern.Kind(patternStr)
		t.Direction = pattern.Direction(directionStr)
		t.ExitReason = ExitReason(reasonStr)
		t.SignalDate = timeFromMillis(signalAt)
		t.EntryDate = timeFromMillis(entryAt)
		t.ExitDate = timeFromMillis(exitAt)
		t.HasRecentEarnings = earnings != 0
		if ctxStr.Valid && ctxStr.String != "" {
			t.Context = json.RawMessage(ctxStr.String)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var symbolsStr, cfgStr string
	var statsStr, summaryStr sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Status, &symbolsStr, &run.Trades, &cfgStr,
		&statsStr, &summaryStr, &run.Message, &createdAt, &updatedAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.CreatedAt = timeFromMillis(createdAt)
	run.UpdatedAt = timeFromMillis(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	if err := json.Unmarshal([]byte(symbolsStr), &run.Symbols); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(cfgStr), &run.Config); err != nil {
		return Run{}, err
	}
	if statsStr.Valid && statsStr.String != "" {
		if err := json.Unmarshal([]byte(statsStr.String), &run.Stats); err != nil {
			return Run{}, err
		}
	}
	if summaryStr.Valid && summaryStr.String != "" {
		if err := json.Unmarshal([]byte(summaryStr.String), &run.Summary); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}
