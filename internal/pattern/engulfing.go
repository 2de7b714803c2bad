package pattern

import (
	"candlelab/internal/market"
)

func init() {
	Register(bullishEngulfing{})
	Register(bearishEngulfing{})
}

// bullishEngulfing 检测看涨吞没：前一根阴线实体被当前阳线实体完全覆盖。
type bullishEngulfing struct{}

func (bullishEngulfing) Kind() Kind { return KindBullishEngulfing }

func (bullishEngulfing) Detect(bars []market.Bar) []Signal {
	var signals []Signal
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		// 十字星（open == close）不构成吞没的任一侧。
		if !prev.Bearish() || !cur.Bullish() {
			continue
		}
		if cur.Open <= prev.Close && cur.Close >= prev.Open {
			signals = append(signals, Signal{
				Symbol:    cur.Symbol,
				Date:      market.Day(cur.Date),
				Kind:      KindBullishEngulfing,
				Direction: DirectionLong,
			})
		}
	}
	return signals
}

// bearishEngulfing 检测看跌吞没：前一根阳线实体被当前阴线实体完全覆盖。
type bearishEngulfing struct{}

func (bearishEngulfing) Kind() Kind { return KindBearishEngulfing }

func (bearishEngulfing) Detect(bars []market.Bar) []Signal {
	var signals []Signal
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if !prev.Bullish() || !cur.Bearish() {
			continue
		}
		if cur.Open >= prev.Close && cur.Close <= prev.Open {
			signals = append(signals, Signal{
				Symbol:    cur.Symbol,
				Date:      market.Day(cur.Date),
				Kind:      KindBearishEngulfing,
				Direction: DirectionShort,
			})
		}
	}
	return signals
}
