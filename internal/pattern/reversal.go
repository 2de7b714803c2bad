package pattern

import (
	"math"

	"candlelab/internal/market"
)

func init() {
	Register(hammer{})
	Register(shootingStar{})
	Register(doji{})
}

func bodySize(b market.Bar) float64 {
	return math.Abs(b.Close - b.Open)
}

func upperWick(b market.Bar) float64 {
	return b.High - math.Max(b.Open, b.Close)
}

func lowerWick(b market.Bar) float64 {
	return math.Min(b.Open, b.Close) - b.Low
}

// hammer 检测锤子线：下影线至少为实体两倍且上影线很短，出现在前一根阴线之后。
type hammer struct{}

func (hammer) Kind() Kind { return KindHammer }

func (hammer) Detect(bars []market.Bar) []Signal {
	var signals []Signal
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		body := bodySize(cur)
		if body == 0 || !prev.Bearish() {
			continue
		}
		if lowerWick(cur) >= body*2 && upperWick(cur) <= body*0.5 {
			signals = append(signals, Signal{
				Symbol:    cur.Symbol,
				Date:      market.Day(cur.Date),
				Kind:      KindHammer,
				Direction: DirectionLong,
			})
		}
	}
	return signals
}

// shootingStar 检测射击之星：上影线至少为实体两倍且下影线很短，出现在前一根阳线之后。
type shootingStar struct{}

func (shootingStar) Kind() Kind { return KindShootingStar }

func (shootingStar) Detect(bars []market.Bar) []Signal {
	var signals []Signal
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		body := bodySize(cur)
		if body == 0 || !prev.Bullish() {
			continue
		}
		if upperWick(cur) >= body*2 && lowerWick(cur) <= body*0.5 {
			signals = append(signals, Signal{
				Symbol:    cur.Symbol,
				Date:      market.Day(cur.Date),
				Kind:      KindShootingStar,
				Direction: DirectionShort,
			})
		}
	}
	return signals
}

// doji 检测十字星：实体相对全幅极小。方向为 none，仅用于统计展示。
type doji struct{}

func (doji) Kind() Kind { return KindDoji }

func (doji) Detect(bars []market.Bar) []Signal {
	var signals []Signal
	for i := 1; i < len(bars); i++ {
		cur := bars[i]
		rng := cur.High - cur.Low
		if rng <= 0 {
			continue
		}
		if bodySize(cur) <= rng*0.1 {
			signals = append(signals, Signal{
				Symbol:    cur.Symbol,
				Date:      market.Day(cur.Date),
				Kind:      KindDoji,
				Direction: DirectionNone,
			})
		}
	}
	return signals
}
