package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"candlelab/internal/backtest"
	"candlelab/internal/config"
	"candlelab/internal/logger"
	"candlelab/internal/market"
	"candlelab/internal/pattern"
	"candlelab/internal/report"
	"candlelab/internal/store"
)

type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	dataStore, err := store.NewStore(cfg.Data.Root)
	if err != nil {
		return nil, fmt.Errorf("初始化数据存储失败: %w", err)
	}
	results, err := backtest.NewResultStore(cfg.Data.ResultsRoot)
	if err != nil {
		dataStore.Close()
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}

	kinds := make([]pattern.Kind, 0, len(cfg.Backtest.Patterns))
	for _, name := range cfg.Backtest.Patterns {
		kinds = append(kinds, pattern.Kind(name))
	}
	runner, err := backtest.NewRunner(backtest.RunnerConfig{
		Store:   dataStore,
		Results: results,
		Defaults: backtest.RunConfig{
			StopWinPct:           cfg.Backtest.StopWinPct,
			StopLossPct:          cfg.Backtest.StopLossPct,
			TransactionCostPct:   cfg.Backtest.TransactionCostPct,
			MaxHoldingDays:       cfg.Backtest.MaxHoldingDays,
			Patterns:             kinds,
			EarningsWindowBefore: cfg.Backtest.EarningsWindowBefore,
			EarningsWindowUntil:  cfg.Backtest.EarningsWindowUntil,
			IndicatorContext:     cfg.Backtest.IndicatorContext,
		},
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
		Parallelism:   cfg.Backtest.Parallelism,
	})
	if err != nil {
		dataStore.Close()
		results.Close()
		return nil, err
	}

	httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:    cfg.Server.Addr,
		Runner:  runner,
		Results: results,
		Store:   dataStore,
		Render:  renderReport(dataStore),
	})
	if err != nil {
		dataStore.Close()
		results.Close()
		return nil, err
	}

	app := &App{
		cfg:     cfg,
		store:   dataStore,
		results: results,
		runner:  runner,
		httpSrv: httpSrv,
	}
	if cfg.Data.WatchDir != "" {
		app.watcher = store.NewWatcher(dataStore, cfg.Data.WatchDir)
	}
	logger.Infof("✓ 已注册形态: %v", pattern.Kinds())
	return app, nil
}

// renderReport 把结果与日线拼成 report.Input 并写回响应。
func renderReport(dataStore *store.Store) backtest.RenderFunc {
	return func(c *gin.Context, run backtest.Run, trades []backtest.Trade) error {
		input := report.Input{Run: run, Trades: trades}
		input.Bars = make(map[string][]market.Bar)
		for _, t := range trades {
			if _, ok := input.Bars[t.Symbol]; ok {
				continue
			}
			bars, err := dataStore.Bars(c.Request.Context(), t.Symbol)
			if err != nil {
				return err
			}
			input.Bars[t.Symbol] = bars
		}
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		return report.Render(c.Writer, input)
	}
}
