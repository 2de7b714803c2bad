package backtest

import (
	"encoding/json"
	"fmt"

	"candlelab/internal/indicator"
	"candlelab/internal/market"
	"candlelab/internal/pattern"
)

// Simulator 对单个信号执行固定规则的模拟交易：
// 信号次日开盘入场，之后逐根检查止盈/止损，数据耗尽按收盘离场。
type Simulator struct {
	cfg RunConfig
}

func NewSimulator(cfg RunConfig) (*Simulator, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{cfg: cfg}, nil
}

// Simulate 在 bars 上模拟 sig 对应的一笔交易。
// 信号落在最后一根 K 线上时无法入场，返回 ok=false 且无错误；
// 信号日期在序列中不存在时返回包装 market.ErrDataIntegrity 的错误。
func (s *Simulator) Simulate(bars []market.Bar, sig pattern.Signal) (Trade, bool, error) {
	if sig.Direction != pattern.DirectionLong && sig.Direction != pattern.DirectionShort {
		return Trade{}, false, nil
	}
	idx := market.IndexOfDate(bars, sig.Date)
	if idx < 0 {
		return Trade{}, false, fmt.Errorf("%w: %s 信号日期 %s 不在序列中",
			market.ErrDataIntegrity, sig.Symbol, sig.Date.Format("2006-01-02"))
	}
	entryIdx := idx + 1
	if entryIdx >= len(bars) {
		// 信号在最后一根 K 线上，没有次日开盘价可以入场。
		return Trade{}, false, nil
	}
	entryBar := bars[entryIdx]
	entry := entryBar.Open
	long := sig.Direction == pattern.DirectionLong

	stopWin := relativeTarget(entry, s.cfg.StopWinPct, long)
	stopLoss := relativeTarget(entry, s.cfg.StopLossPct, !long)

	trade := Trade{
		Symbol:     sig.Symbol,
		Pattern:    sig.Kind,
		Direction:  sig.Direction,
		SignalDate: sig.Date,
		EntryDate:  market.Day(entryBar.Date),
		EntryPrice: entry,
	}

	exitIdx := -1
	for i := entryIdx; i < len(bars); i++ {
		bar := bars[i]
		lossHit, winHit := breach(bar, long, stopLoss, stopWin)
		// 同一根 K 线同时触及止盈止损时按止损处理（保守假设）。
		if lossHit {
			trade.ExitPrice = stopLoss
			trade.ExitReason = ExitStopLoss
			exitIdx = i
			break
		}
		if winHit {
			trade.ExitPrice = stopWin
			trade.ExitReason = ExitStopWin
			exitIdx = i
			break
		}
		if s.cfg.MaxHoldingDays > 0 && i-entryIdx+1 >= s.cfg.MaxHoldingDays {
			trade.ExitPrice = bar.Close
			trade.ExitReason = ExitEndOfData
			exitIdx = i
			break
		}
	}
	if exitIdx < 0 {
		// 持有到数据末尾，按最后一根收盘价离场。
		exitIdx = len(bars) - 1
		trade.ExitPrice = bars[exitIdx].Close
		trade.ExitReason = ExitEndOfData
	}
	trade.ExitDate = market.Day(bars[exitIdx].Date)
	// 持有天数按入场与离场 K 线双端都计入的方式统计。
	trade.HoldingDays = exitIdx - entryIdx + 1

	if long {
		trade.GrossReturn = (trade.ExitPrice - entry) / entry
	} else {
		trade.GrossReturn = (entry - trade.ExitPrice) / entry
	}
	trade.NetReturn = trade.GrossReturn - s.cfg.TransactionCostPct

	if s.cfg.IndicatorContext {
		if ctx, ok := indicator.Snapshot(bars, entryIdx); ok {
			if raw, err := json.Marshal(ctx); err == nil {
				trade.Context = raw
			}
		}
	}
	return trade, true, nil
}

// breach 判断当前 K 线是否触及止损/止盈阈值。阈值比较走 decimal，
// 避免 entry*(1-pct) 这类乘积在 float64 下与 low/high 相等时误判。
func breach(bar market.Bar, long bool, stopLoss, stopWin float64) (lossHit, winHit bool) {
	if long {
		lossHit = decimalLTE(bar.Low, stopLoss)
		winHit = decimalGTE(bar.High, stopWin)
		return
	}
	lossHit = decimalGTE(bar.High, stopLoss)
	winHit = decimalLTE(bar.Low, stopWin)
	return
}
