package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"candlelab/internal/market"
	"candlelab/internal/pattern"
	"candlelab/internal/store"
)

func newTestRunner(t *testing.T) (*Runner, *store.Store) {
	t.Helper()
	dataStore, err := store.NewStore(t.TempDir())
	assert.NoError(t, err)
	t.Cleanup(func() { dataStore.Close() })
	results, err := NewResultStore(t.TempDir())
	assert.NoError(t, err)
	t.Cleanup(func() { results.Close() })
	runner, err := NewRunner(RunnerConfig{Store: dataStore, Results: results})
	assert.NoError(t, err)
	return runner, dataStore
}

func seedEngulfingSeries(t *testing.T, dataStore *store.Store, symbol string) {
	t.Helper()
	bars := []market.Bar{
		{Symbol: symbol, Date: day(0), Open: 10.5, High: 10.6, Low: 9.9, Close: 10.0, Volume: 1000},
		{Symbol: symbol, Date: day(1), Open: 9.95, High: 10.7, Low: 9.9, Close: 10.55, Volume: 1200},
		{Symbol: symbol, Date: day(2), Open: 10.6, High: 10.8, Low: 10.5, Close: 10.7, Volume: 900},
		{Symbol: symbol, Date: day(3), Open: 10.7, High: 10.9, Low: 10.55, Close: 10.75, Volume: 800},
		{Symbol: symbol, Date: day(4), Open: 10.75, High: 10.95, Low: 10.6, Close: 10.8, Volume: 700},
	}
	_, err := dataStore.InsertBars(context.Background(), symbol, bars)
	assert.NoError(t, err)
}

func TestRunSymbolsFanOut(t *testing.T) {
	runner, dataStore := newTestRunner(t)
	ctx := context.Background()

	seedEngulfingSeries(t, dataStore, "GOOD")
	_, err := dataStore.InsertEarnings(ctx, "GOOD", []market.EarningsEvent{
		{Symbol: "GOOD", ReportDate: day(1)},
	})
	assert.NoError(t, err)

	// 无形态的平稳序列。
	flat := []market.Bar{
		{Symbol: "OTHER", Date: day(0), Open: 20.0, High: 20.3, Low: 19.9, Close: 20.2, Volume: 100},
		{Symbol: "OTHER", Date: day(1), Open: 20.2, High: 20.5, Low: 20.1, Close: 20.4, Volume: 100},
		{Symbol: "OTHER", Date: day(2), Open: 20.4, High: 20.6, Low: 20.3, Close: 20.5, Volume: 100},
	}
	_, err = dataStore.InsertBars(ctx, "OTHER", flat)
	assert.NoError(t, err)

	cfg := RunConfig{Patterns: []pattern.Kind{pattern.KindBullishEngulfing}}
	cfg.Normalize()

	trades, stats, err := runner.runSymbols(ctx, cfg, []string{"EMPTY", "GOOD", "OTHER"})
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.Symbols)
	assert.Equal(t, 2, stats.SymbolsOK)
	assert.Len(t, stats.Warnings, 1)
	assert.Equal(t, "EMPTY", stats.Warnings[0].Symbol)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, stats.Signals)
	assert.Equal(t, 1, stats.Trades)

	assert.Len(t, trades, 1)
	trade := trades[0]
	assert.Equal(t, "GOOD", trade.Symbol)
	assert.Equal(t, pattern.KindBullishEngulfing, trade.Pattern)
	assert.Equal(t, 10.6, trade.EntryPrice)
	assert.True(t, trade.EntryDate.Equal(day(2)))
	assert.Equal(t, ExitEndOfData, trade.ExitReason)
	assert.True(t, trade.HasRecentEarnings)
}

func TestRunSymbolsNeutralPatternsNotSimulated(t *testing.T) {
	runner, dataStore := newTestRunner(t)
	ctx := context.Background()

	// 十字星序列：产生 doji 信号但不应生成交易。
	bars := []market.Bar{
		{Symbol: "DOJI", Date: day(0), Open: 10.0, High: 10.3, Low: 9.9, Close: 10.2, Volume: 100},
		{Symbol: "DOJI", Date: day(1), Open: 10.2, High: 10.5, Low: 9.9, Close: 10.22, Volume: 100},
		{Symbol: "DOJI", Date: day(2), Open: 10.2, High: 10.4, Low: 10.1, Close: 10.3, Volume: 100},
	}
	_, err := dataStore.InsertBars(ctx, "DOJI", bars)
	assert.NoError(t, err)

	cfg := RunConfig{Patterns: []pattern.Kind{pattern.KindDoji}}
	cfg.Normalize()

	trades, stats, err := runner.runSymbols(ctx, cfg, []string{"DOJI"})
	assert.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 1, stats.Signals)
	assert.Equal(t, 1, stats.DroppedSignals)
}

func TestStartRunRejectsBadRequest(t *testing.T) {
	runner, dataStore := newTestRunner(t)
	seedEngulfingSeries(t, dataStore, "GOOD")

	_, err := runner.StartRun(RunRequest{
		Symbols:  []string{"GOOD"},
		Patterns: []pattern.Kind{"morning_star"},
	})
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = runner.StartRun(RunRequest{Symbols: []string{"GOOD"}, StopWinPct: 2})
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}
