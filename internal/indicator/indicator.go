package indicator

import (
	"candlelab/internal/market"

	talib "github.com/markcheno/go-talib"
)

const (
	rsiPeriod     = 14
	emaFastPeriod = 10
	emaSlowPeriod = 30
)

// Context 是入场时刻的指标快照，随成交记录一并落库，便于事后归因。
type Context struct {
	RSI14   float64 `json:"rsi_14"`
	EMAFast float64 `json:"ema_fast"`
	EMASlow float64 `json:"ema_slow"`
	// AboveSlowEMA 表示入场收盘价是否站上慢速均线。
	AboveSlowEMA bool `json:"above_slow_ema"`
}

// Snapshot 计算 bars[idx] 处的指标上下文。
// 历史长度不足以算出慢速均线时返回 ok=false，调用方应跳过该快照。
func Snapshot(bars []market.Bar, idx int) (Context, bool) {
	if idx < 0 || idx >= len(bars) {
		return Context{}, false
	}
	window := bars[:idx+1]
	need := emaSlowPeriod
	if rsiPeriod+1 > need {
		need = rsiPeriod + 1
	}
	if len(window) < need {
		return Context{}, false
	}
	closes := make([]float64, len(window))
	for i, b := range window {
		closes[i] = b.Close
	}
	rsi := talib.Rsi(closes, rsiPeriod)
	emaFast := talib.Ema(closes, emaFastPeriod)
	emaSlow := talib.Ema(closes, emaSlowPeriod)
	last := len(closes) - 1
	ctx := Context{
		RSI14:   rsi[last],
		EMAFast: emaFast[last],
		EMASlow: emaSlow[last],
	}
	ctx.AboveSlowEMA = closes[last] > ctx.EMASlow
	return ctx, true
}
