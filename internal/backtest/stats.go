package backtest

import (
	"candlelab/internal/pattern"
)

// Metrics 是一组交易的聚合指标。Valid=false 表示该分组没有任何交易，
// 调用方不应把零值指标误读成"收益为 0"。
type Metrics struct {
	Count        int     `json:"count"`
	Hits         int     `json:"hits"`
	HitRate      float64 `json:"hit_rate"`
	AvgNetReturn float64 `json:"avg_net_return"`
	TotalReturn  float64 `json:"total_return"`
	Best         float64 `json:"best"`
	Worst        float64 `json:"worst"`
	Valid        bool    `json:"valid"`
}

// Summary 为一次回测（或其一个子集）的统计汇总。
type Summary struct {
	Overall     Metrics                       `json:"overall"`
	BySymbol    map[string]Metrics            `json:"by_symbol,omitempty"`
	ByPattern   map[pattern.Kind]Metrics      `json:"by_pattern,omitempty"`
	ByDirection map[pattern.Direction]Metrics `json:"by_direction,omitempty"`
}

func computeMetrics(trades []Trade) Metrics {
	if len(trades) == 0 {
		return Metrics{}
	}
	m := Metrics{Count: len(trades), Valid: true}
	m.Best = trades[0].NetReturn
	m.Worst = trades[0].NetReturn
	for _, t := range trades {
		if t.Win() {
			m.Hits++
		}
		m.TotalReturn += t.NetReturn
		if t.NetReturn > m.Best {
			m.Best = t.NetReturn
		}
		if t.NetReturn < m.Worst {
			m.Worst = t.NetReturn
		}
	}
	m.HitRate = float64(m.Hits) / float64(m.Count)
	m.AvgNetReturn = m.TotalReturn / float64(m.Count)
	return m
}

// Summarize 汇总整体及按 symbol/形态/方向的分组指标。
// 空输入返回 Overall.Valid=false 的摘要，而不是一组零。
func Summarize(trades []Trade) Summary {
	sum := Summary{Overall: computeMetrics(trades)}
	if len(trades) == 0 {
		return sum
	}
	bySymbol := make(map[string][]Trade)
	byPattern := make(map[pattern.Kind][]Trade)
	byDirection := make(map[pattern.Direction][]Trade)
	for _, t := range trades {
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
		byPattern[t.Pattern] = append(byPattern[t.Pattern], t)
		byDirection[t.Direction] = append(byDirection[t.Direction], t)
	}
	sum.BySymbol = make(map[string]Metrics, len(bySymbol))
	for sym, group := range bySymbol {
		sum.BySymbol[sym] = computeMetrics(group)
	}
	sum.ByPattern = make(map[pattern.Kind]Metrics, len(byPattern))
	for kind, group := range byPattern {
		sum.ByPattern[kind] = computeMetrics(group)
	}
	sum.ByDirection = make(map[pattern.Direction]Metrics, len(byDirection))
	for dir, group := range byDirection {
		sum.ByDirection[dir] = computeMetrics(group)
	}
	return sum
}

// SummarySet 把同一批交易按"入场前是否临近财报"切成三份汇总，
// 用于对比条件化样本与全样本的表现差异。
type SummarySet struct {
	All          Summary `json:"all"`
	EarningsOnly Summary `json:"earnings_only"`
	NonEarnings  Summary `json:"non_earnings"`
}

// SummarizeSet 生成全样本与财报窗口内/外子样本的汇总。
func SummarizeSet(trades []Trade) SummarySet {
	return SummarySet{
		All:          Summarize(trades),
		EarningsOnly: Summarize(Filter(trades, func(t Trade) bool { return t.HasRecentEarnings })),
		NonEarnings:  Summarize(Filter(trades, func(t Trade) bool { return !t.HasRecentEarnings })),
	}
}

// Filter 返回满足谓词的交易子集。
func Filter(trades []Trade, keep func(Trade) bool) []Trade {
	var out []Trade
	for _, t := range trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
