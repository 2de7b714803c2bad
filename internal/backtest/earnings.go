package backtest

import (
	"candlelab/internal/market"
)

// LabelEarnings 为每笔交易打上"入场前是否临近财报"的标记。
// 窗口按交易日历（bars 序列自身）计算：[entry − before, entry − until]，
// 默认 T-5..T-1。report_date 落在非交易日时按日期闭区间比较仍能命中。
// events 顺序不影响结果。
func LabelEarnings(trades []Trade, bars []market.Bar, events []market.EarningsEvent, before, until int) {
	if len(trades) == 0 {
		return
	}
	if before <= 0 {
		before = DefaultWindowBefore
	}
	if until <= 0 {
		until = DefaultWindowUntil
	}
	for i := range trades {
		trades[i].HasRecentEarnings = hasRecentEarnings(trades[i], bars, events, before, until)
	}
}

func hasRecentEarnings(t Trade, bars []market.Bar, events []market.EarningsEvent, before, until int) bool {
	entryIdx := market.IndexOfDate(bars, t.EntryDate)
	if entryIdx < 0 {
		return false
	}
	endIdx := entryIdx - until
	if endIdx < 0 {
		return false
	}
	startIdx := entryIdx - before
	if startIdx < 0 {
		startIdx = 0
	}
	windowStart := market.Day(bars[startIdx].Date)
	windowEnd := market.Day(bars[endIdx].Date)
	for _, ev := range events {
		if ev.Symbol != t.Symbol {
			continue
		}
		report := market.Day(ev.ReportDate)
		if !report.Before(windowStart) && !report.After(windowEnd) {
			return true
		}
	}
	return false
}
