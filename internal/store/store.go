package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"candlelab/internal/logger"
	"candlelab/internal/market"

	_ "modernc.org/sqlite"
)

// Manifest 记录某个 symbol 数据文件的统计信息。
type Manifest struct {
	Symbol     string `json:"symbol"`
	MinDate    int64  `json:"min_date"`
	MaxDate    int64  `json:"max_date"`
	Bars       int64  `json:"bars"`
	Earnings   int64  `json:"earnings"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Store 把每个 symbol 的日线与财报事件放进独立的 sqlite 文件
// （<root>/<SYMBOL>/daily.db），互不影响也便于单个删除重建。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(symbol string) (*sql.DB, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, "", fmt.Errorf("symbol 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[symbol]; ok && db != nil {
		return db, s.dbPath(symbol), nil
	}
	path := s.dbPath(symbol)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[symbol] = db
	return db, path, nil
}

func (s *Store) dbPath(symbol string) string {
	return filepath.Join(s.root, strings.ToUpper(symbol), "daily.db")
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			date INTEGER PRIMARY KEY,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS earnings (
			report_date INTEGER PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			min_date INTEGER,
			max_date INTEGER,
			bars INTEGER,
			earnings INTEGER,
			last_sync_at INTEGER
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertBars 批量写入日线（重复日期将被覆盖）。写入前做完整性校验。
func (s *Store) InsertBars(ctx context.Context, symbol string, bars []market.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	if err := market.ValidateSeries(bars); err != nil {
		return 0, err
	}
	db, _, err := s.db(symbol)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, market.Day(b.Date).UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// InsertEarnings 批量写入财报事件（按日期去重）。
func (s *Store) InsertEarnings(ctx context.Context, symbol string, events []market.EarningsEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	db, _, err := s.db(symbol)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO earnings (report_date) VALUES (?)
		ON CONFLICT(report_date) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, market.Day(ev.ReportDate).UnixMilli()); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// Bars 读取某个 symbol 的全部日线，按日期升序。
func (s *Store) Bars(ctx context.Context, symbol string) ([]market.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	db, _, err := s.db(symbol)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT date, open, high, low, close, volume FROM bars ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Bar
	for rows.Next() {
		var b market.Bar
		var date int64
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Symbol = symbol
		b.Date = time.UnixMilli(date).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// Earnings 读取某个 symbol 的财报事件，按日期升序。
func (s *Store) Earnings(ctx context.Context, symbol string) ([]market.EarningsEvent, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	db, _, err := s.db(symbol)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT report_date FROM earnings ORDER BY report_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.EarningsEvent
	for rows.Next() {
		var date int64
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		out = append(out, market.EarningsEvent{
			Symbol:     symbol,
			ReportDate: time.UnixMilli(date).UTC(),
		})
	}
	return out, rows.Err()
}

// Symbols 枚举数据目录下已有日线文件的 symbol。
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, entry.Name(), "daily.db")); err == nil {
			out = append(out, strings.ToUpper(entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Manifest 返回某个 symbol 的数据统计。
func (s *Store) Manifest(ctx context.Context, symbol string) (Manifest, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	db, path, err := s.db(symbol)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{Symbol: symbol, Path: path}
	row := db.QueryRowContext(ctx, `SELECT min_date, max_date, bars, earnings, last_sync_at FROM manifest WHERE id=1`)
	var minDate, maxDate, barsCnt, earningsCnt, syncAt sql.NullInt64
	if err := row.Scan(&minDate, &maxDate, &barsCnt, &earningsCnt, &syncAt); err != nil {
		if err == sql.ErrNoRows {
			return m, nil
		}
		return Manifest{}, err
	}
	m.MinDate = minDate.Int64
	m.MaxDate = maxDate.Int64
	m.Bars = barsCnt.Int64
	m.Earnings = earningsCnt.Int64
	m.LastSyncAt = syncAt.Int64
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO manifest (id, min_date, max_date, bars, earnings, last_sync_at)
		SELECT 1,
		       (SELECT MIN(date) FROM bars),
		       (SELECT MAX(date) FROM bars),
		       (SELECT COUNT(1) FROM bars),
		       (SELECT COUNT(1) FROM earnings),
		       ?
		ON CONFLICT(id) DO UPDATE SET
		    min_date=excluded.min_date,
		    max_date=excluded.max_date,
		    bars=excluded.bars,
		    earnings=excluded.earnings,
		    last_sync_at=excluded.last_sync_at`, time.Now().UnixMilli())
	return err
}

// ImportCSVFile 导入一份下载器输出的日线 CSV，文件名需形如 AAPL_daily.csv。
func (s *Store) ImportCSVFile(ctx context.Context, path string) (string, int, error) {
	symbol, ok := SymbolFromCSVPath(path)
	if !ok {
		return "", 0, fmt.Errorf("无法从文件名解析 symbol: %s", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	bars, err := market.ParseDailyCSV(f, symbol)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	n, err := s.InsertBars(ctx, symbol, bars)
	return symbol, n, err
}

// ImportEarningsFile 导入一份财报事件 JSON，文件名需形如 AAPL_earnings.json。
func (s *Store) ImportEarningsFile(ctx context.Context, path string) (string, int, error) {
	symbol, ok := SymbolFromEarningsPath(path)
	if !ok {
		return "", 0, fmt.Errorf("无法从文件名解析 symbol: %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	events, err := market.ParseEarningsJSON(data, symbol)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	n, err := s.InsertEarnings(ctx, symbol, events)
	return symbol, n, err
}

// ImportDir 扫描目录并导入全部可识别文件，单个文件失败只记日志不中断。
func (s *Store) ImportDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		switch {
		case IsCSVDataFile(path):
			symbol, n, err := s.ImportCSVFile(ctx, path)
			if err != nil {
				logger.Warnf("导入 %s 失败: %v", entry.Name(), err)
				continue
			}
			logger.Infof("导入 %s: %d 根日线", symbol, n)
			imported++
		case IsEarningsDataFile(path):
			symbol, n, err := s.ImportEarningsFile(ctx, path)
			if err != nil {
				logger.Warnf("导入 %s 失败: %v", entry.Name(), err)
				continue
			}
			logger.Infof("导入 %s: %d 条财报事件", symbol, n)
			imported++
		}
	}
	return imported, nil
}

// SymbolFromCSVPath 解析 AAPL_daily.csv 形式的文件名。
func SymbolFromCSVPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, "_daily.csv") {
		return "", false
	}
	symbol := strings.TrimSuffix(base, "_daily.csv")
	if symbol == "" {
		return "", false
	}
	return strings.ToUpper(symbol), true
}

// SymbolFromEarningsPath 解析 AAPL_earnings.json 形式的文件名。
func SymbolFromEarningsPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, "_earnings.json") {
		return "", false
	}
	symbol := strings.TrimSuffix(base, "_earnings.json")
	if symbol == "" {
		return "", false
	}
	return strings.ToUpper(symbol), true
}

// IsCSVDataFile 判断路径是否为可导入的日线 CSV。
func IsCSVDataFile(path string) bool {
	_, ok := SymbolFromCSVPath(path)
	return ok
}

// IsEarningsDataFile 判断路径是否为可导入的财报 JSON。
func IsEarningsDataFile(path string) bool {
	_, ok := SymbolFromEarningsPath(path)
	return ok
}
