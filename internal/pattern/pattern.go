package pattern

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"candlelab/internal/market"
)

// Kind 标识一种 K 线形态。
type Kind string

const (
	KindBullishEngulfing Kind = "bullish_engulfing"
	KindBearishEngulfing Kind = "bearish_engulfing"
	KindHammer           Kind = "hammer"
	KindShootingStar     Kind = "shooting_star"
	KindDoji             Kind = "doji"
)

// Direction 表示形态给出的方向。
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	// DirectionNone 用于仅作统计、不触发模拟交易的形态（如 doji）。
	DirectionNone Direction = "none"
)

// Signal 表示在确认 K 线上产生的一次形态信号。
type Signal struct {
	Symbol    string    `json:"symbol"`
	Date      time.Time `json:"signal_date"`
	Kind      Kind      `json:"pattern_kind"`
	Direction Direction `json:"direction"`
}

// Detector 扫描单个 symbol 的日线序列并产出信号。实现必须无副作用。
type Detector interface {
	Kind() Kind
	Detect(bars []market.Bar) []Signal
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Detector)
)

// Register 注册一个形态检测器；重复注册同一 Kind 会 panic（启动期错误）。
func Register(d Detector) {
	if d == nil {
		panic("pattern: nil detector")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[d.Kind()]; dup {
		panic(fmt.Sprintf("pattern: duplicate detector %s", d.Kind()))
	}
	registry[d.Kind()] = d
}

// Lookup 按 Kind 查找检测器。
func Lookup(kind Kind) (Detector, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[kind]
	return d, ok
}

// Kinds 返回全部已注册的 Kind（升序，便于稳定输出）。
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve 按允许列表解析检测器；列表为空时返回全部。
func Resolve(kinds []Kind) ([]Detector, error) {
	if len(kinds) == 0 {
		kinds = Kinds()
	}
	out := make([]Detector, 0, len(kinds))
	for _, k := range kinds {
		d, ok := Lookup(k)
		if !ok {
			return nil, fmt.Errorf("未知形态: %s", k)
		}
		out = append(out, d)
	}
	return out, nil
}
