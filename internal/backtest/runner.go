package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"candlelab/internal/logger"
	"candlelab/internal/market"
	"candlelab/internal/pattern"
	"candlelab/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunnerConfig 配置 Runner。
type RunnerConfig struct {
	Store         *store.Store
	Results       *ResultStore
	Defaults      RunConfig
	MaxConcurrent int
	Parallelism   int
}

// Runner 负责调度回测任务：提交即返回，执行放在后台，
// 每次执行内部再按 symbol 并行展开。
type Runner struct {
	store       *store.Store
	results     *ResultStore
	defaults    RunConfig
	parallelism int

	sem chan struct{}

	baseCtx context.Context
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	defaults := cfg.Defaults
	defaults.Normalize()
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		store:       cfg.Store,
		results:     cfg.Results,
		defaults:    defaults,
		parallelism: parallelism,
		sem:         make(chan struct{}, maxConcurrent),
		baseCtx:     context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (r *Runner) SetContext(ctx context.Context) {
	if ctx != nil {
		r.baseCtx = ctx
	}
}

func (r *Runner) ctx() context.Context {
	if r.baseCtx == nil {
		return context.Background()
	}
	return r.baseCtx
}

// StartRun 提交一次回测。symbols 为空时取数据目录下全部 symbol。
func (r *Runner) StartRun(req RunRequest) (Run, error) {
	cfg := req.apply(r.defaults)
	if err := cfg.Validate(); err != nil {
		return Run{}, err
	}
	symbols, err := r.resolveSymbols(req.Symbols)
	if err != nil {
		return Run{}, err
	}
	if len(symbols) == 0 {
		return Run{}, fmt.Errorf("%w: 没有可用的 symbol 数据", ErrConfiguration)
	}
	run := Run{
		ID:      uuid.NewString(),
		Status:  RunStatusPending,
		Symbols: symbols,
		Config:  cfg,
	}
	if err := r.results.InsertRun(r.ctx(), run); err != nil {
		return Run{}, err
	}
	logger.Infof("[backtest] 任务 %s 提交：%d symbols 形态=%v", run.ID, len(symbols), cfg.Patterns)
	go r.execute(run.ID, cfg, symbols)
	return run, nil
}

func (r *Runner) resolveSymbols(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return r.store.Symbols(r.ctx())
	}
	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, sym := range requested {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Runner) execute(runID string, cfg RunConfig, symbols []string) {
	select {
	case r.sem <- struct{}{}:
	case <-r.ctx().Done():
		_ = r.results.UpdateRunStatus(context.Background(), runID, RunStatusFailed, "服务已关闭")
		return
	}
	defer func() { <-r.sem }()

	ctx := r.ctx()
	if err := r.results.UpdateRunStatus(ctx, runID, RunStatusRunning, ""); err != nil {
		logger.Warnf("[backtest] 任务 %s 更新状态失败: %v", runID, err)
	}

	trades, stats, err := r.runSymbols(ctx, cfg, symbols)
	if err != nil {
		logger.Errorf("[backtest] 任务 %s 失败: %v", runID, err)
		_ = r.results.UpdateRunStatus(context.Background(), runID, RunStatusFailed, err.Error())
		return
	}
	stats.FinishedAt = time.Now()

	if err := r.results.InsertTrades(ctx, runID, trades); err != nil {
		logger.Errorf("[backtest] 任务 %s 写入成交失败: %v", runID, err)
		_ = r.results.UpdateRunStatus(context.Background(), runID, RunStatusFailed, err.Error())
		return
	}
	summary := SummarizeSet(trades)
	if err := r.results.UpdateRunSummary(ctx, runID, RunStatusDone, stats, summary, ""); err != nil {
		logger.Errorf("[backtest] 任务 %s 写入汇总失败: %v", runID, err)
		return
	}
	logger.Infof("[backtest] 任务 %s 完成：%d 笔成交 / %d symbols（失败 %d）",
		runID, len(trades), stats.Symbols, len(stats.Errors))
}

// runSymbols 对每个 symbol 并行跑完整条流水线，单个 symbol 出错不拖垮其余。
func (r *Runner) runSymbols(ctx context.Context, cfg RunConfig, symbols []string) ([]Trade, RunStats, error) {
	sim, err := NewSimulator(cfg)
	if err != nil {
		return nil, RunStats{}, err
	}
	detectors, err := pattern.Resolve(cfg.Patterns)
	if err != nil {
		return nil, RunStats{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	stats := RunStats{Symbols: len(symbols)}
	var mu sync.Mutex
	var trades []Trade

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			result, err := r.runSymbol(gctx, sim, detectors, cfg, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// 数据问题只隔离该 symbol，调度类错误（ctx 取消）才整体失败。
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Warnf("[backtest] symbol %s 失败: %v", symbol, err)
				stats.Errors = append(stats.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
				return nil
			}
			if result.empty {
				stats.Warnings = append(stats.Warnings, SymbolWarning{Symbol: symbol, Message: "没有日线数据"})
				return nil
			}
			stats.SymbolsOK++
			stats.Signals += result.signals
			stats.DroppedSignals += result.dropped
			trades = append(trades, result.trades...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, RunStats{}, err
	}

	sort.Slice(trades, func(i, j int) bool {
		if trades[i].Symbol != trades[j].Symbol {
			return trades[i].Symbol < trades[j].Symbol
		}
		if !trades[i].EntryDate.Equal(trades[j].EntryDate) {
			return trades[i].EntryDate.Before(trades[j].EntryDate)
		}
		return trades[i].Pattern < trades[j].Pattern
	})
	stats.Trades = len(trades)
	return trades, stats, nil
}

type symbolResult struct {
	trades  []Trade
	signals int
	dropped int
	empty   bool
}

func (r *Runner) runSymbol(ctx context.Context, sim *Simulator, detectors []pattern.Detector, cfg RunConfig, symbol string) (symbolResult, error) {
	bars, err := r.store.Bars(ctx, symbol)
	if err != nil {
		return symbolResult{}, err
	}
	if len(bars) == 0 {
		return symbolResult{empty: true}, nil
	}
	if err := market.ValidateSeries(bars); err != nil {
		return symbolResult{}, err
	}
	events, err := r.store.Earnings(ctx, symbol)
	if err != nil {
		return symbolResult{}, err
	}

	var result symbolResult
	for _, det := range detectors {
		signals := det.Detect(bars)
		result.signals += len(signals)
		for _, sig := range signals {
			if sig.Direction == pattern.DirectionNone {
				// 中性形态只计数，不进模拟。
				result.dropped++
				continue
			}
			trade, ok, err := sim.Simulate(bars, sig)
			if err != nil {
				return symbolResult{}, err
			}
			if !ok {
				result.dropped++
				continue
			}
			result.trades = append(result.trades, trade)
		}
	}
	LabelEarnings(result.trades, bars, events, cfg.EarningsWindowBefore, cfg.EarningsWindowUntil)
	return result, nil
}
