package backtest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"candlelab/internal/pattern"
)

func newTestResultStore(t *testing.T) *ResultStore {
	t.Helper()
	s, err := NewResultStore(t.TempDir())
	assert.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResultStoreRunLifecycle(t *testing.T) {
	s := newTestResultStore(t)
	ctx := context.Background()

	cfg := RunConfig{}
	cfg.Normalize()
	run := Run{
		ID:      "run-1",
		Status:  RunStatusPending,
		Symbols: []string{"AAPL", "MSFT"},
		Config:  cfg,
	}
	assert.NoError(t, s.InsertRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	assert.NoError(t, err)
	assert.Equal(t, RunStatusPending, got.Status)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got.Symbols)
	assert.Equal(t, DefaultStopWinPct, got.Config.StopWinPct)

	assert.NoError(t, s.UpdateRunStatus(ctx, "run-1", RunStatusRunning, ""))
	got, err = s.GetRun(ctx, "run-1")
	assert.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.True(t, got.CompletedAt.IsZero())

	trades := []Trade{
		{
			Symbol:      "AAPL",
			Pattern:     pattern.KindBullishEngulfing,
			Direction:   pattern.DirectionLong,
			SignalDate:  day(0),
			EntryDate:   day(1),
			EntryPrice:  10.3,
			ExitDate:    day(3),
			ExitPrice:   10.35,
			ExitReason:  ExitEndOfData,
			GrossReturn: 0.00485,
			NetReturn:   0.00385,
			HoldingDays: 3,
			Context:     json.RawMessage(`{"rsi_14":55.2}`),
		},
		{
			Symbol:            "MSFT",
			Pattern:           pattern.KindBearishEngulfing,
			Direction:         pattern.DirectionShort,
			SignalDate:        day(2),
			EntryDate:         day(3),
			EntryPrice:        20,
			ExitDate:          day(4),
			ExitPrice:         19,
			ExitReason:        ExitStopWin,
			GrossReturn:       0.05,
			NetReturn:         0.049,
			HoldingDays:       2,
			HasRecentEarnings: true,
		},
	}
	assert.NoError(t, s.InsertTrades(ctx, "run-1", trades))

	stats := RunStats{Symbols: 2, SymbolsOK: 2, Signals: 2, Trades: 2}
	assert.NoError(t, s.UpdateRunSummary(ctx, "run-1", RunStatusDone, stats, SummarizeSet(trades), ""))

	got, err = s.GetRun(ctx, "run-1")
	assert.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.Equal(t, 2, got.Trades)
	assert.False(t, got.CompletedAt.IsZero())
	assert.Equal(t, 2, got.Summary.All.Overall.Count)
	assert.Equal(t, 1, got.Summary.EarningsOnly.Overall.Count)

	list, err := s.ListRuns(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResultStoreListTrades(t *testing.T) {
	s := newTestResultStore(t)
	ctx := context.Background()

	cfg := RunConfig{}
	cfg.Normalize()
	assert.NoError(t, s.InsertRun(ctx, Run{ID: "run-2", Status: RunStatusPending, Symbols: []string{"AAPL"}, Config: cfg}))

	trades := []Trade{
		{Symbol: "AAPL", Pattern: pattern.KindHammer, Direction: pattern.DirectionLong,
			SignalDate: day(0), EntryDate: day(1), EntryPrice: 10, ExitDate: day(2), ExitPrice: 9.5,
			ExitReason: ExitStopLoss, GrossReturn: -0.05, NetReturn: -0.051, HoldingDays: 2},
		{Symbol: "TSLA", Pattern: pattern.KindHammer, Direction: pattern.DirectionLong,
			SignalDate: day(1), EntryDate: day(2), EntryPrice: 100, ExitDate: day(3), ExitPrice: 120,
			ExitReason: ExitStopWin, GrossReturn: 0.2, NetReturn: 0.199, HoldingDays: 2},
	}
	assert.NoError(t, s.InsertTrades(ctx, "run-2", trades))

	all, err := s.ListTrades(ctx, "run-2", "", 0)
	assert.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "run-2", all[0].RunID)
	assert.True(t, all[0].EntryDate.Equal(day(1)))
	assert.Equal(t, ExitStopLoss, all[0].ExitReason)

	only, err := s.ListTrades(ctx, "run-2", "TSLA", 0)
	assert.NoError(t, err)
	assert.Len(t, only, 1)
	assert.Equal(t, pattern.KindHammer, only[0].Pattern)
	assert.InDelta(t, 0.199, only[0].NetReturn, 1e-9)
}
