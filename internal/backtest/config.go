package backtest

import (
	"errors"
	"fmt"

	"candlelab/internal/pattern"
)

// ErrConfiguration 表示回测参数不合法。
var ErrConfiguration = errors.New("invalid backtest configuration")

// 缺省参数沿用最初研究的设定：止盈 20%、止损 5%、往返成本 10bps。
const (
	DefaultStopWinPct         = 0.20
	DefaultStopLossPct        = 0.05
	DefaultTransactionCostPct = 0.001
	DefaultWindowBefore       = 5
	DefaultWindowUntil        = 1
)

// RunConfig 记录一次回测的参数快照，便于重放。
type RunConfig struct {
	StopWinPct         float64        `json:"stop_win_pct"`
	StopLossPct        float64        `json:"stop_loss_pct"`
	TransactionCostPct float64        `json:"transaction_cost_pct"`
	// MaxHoldingDays 为 0 表示不限制持有天数。
	MaxHoldingDays int            `json:"max_holding_days,omitempty"`
	Patterns       []pattern.Kind `json:"patterns,omitempty"`
	// 财报窗口 [entry − before 个交易日, entry − until 个交易日]。
	EarningsWindowBefore int  `json:"earnings_window_before"`
	EarningsWindowUntil  int  `json:"earnings_window_until"`
	IndicatorContext     bool `json:"indicator_context,omitempty"`
}

// Normalize 填充缺省值。零值字段取缺省，显式非法值留给 Validate 报错。
func (c *RunConfig) Normalize() {
	if c.StopWinPct == 0 {
		c.StopWinPct = DefaultStopWinPct
	}
	if c.StopLossPct == 0 {
		c.StopLossPct = DefaultStopLossPct
	}
	if c.TransactionCostPct == 0 {
		c.TransactionCostPct = DefaultTransactionCostPct
	}
	if c.EarningsWindowBefore == 0 {
		c.EarningsWindowBefore = DefaultWindowBefore
	}
	if c.EarningsWindowUntil == 0 {
		c.EarningsWindowUntil = DefaultWindowUntil
	}
}

// Validate 校验参数范围；错误可用 errors.Is(err, ErrConfiguration) 识别。
func (c RunConfig) Validate() error {
	if c.StopWinPct <= 0 || c.StopWinPct > 1 {
		return fmt.Errorf("%w: stop_win_pct=%v 需在 (0,1]", ErrConfiguration, c.StopWinPct)
	}
	if c.StopLossPct <= 0 || c.StopLossPct > 1 {
		return fmt.Errorf("%w: stop_loss_pct=%v 需在 (0,1]", ErrConfiguration, c.StopLossPct)
	}
	if c.TransactionCostPct < 0 {
		return fmt.Errorf("%w: transaction_cost_pct=%v 不能为负", ErrConfiguration, c.TransactionCostPct)
	}
	if c.MaxHoldingDays < 0 {
		return fmt.Errorf("%w: max_holding_days=%d 不能为负", ErrConfiguration, c.MaxHoldingDays)
	}
	if c.EarningsWindowUntil < 1 || c.EarningsWindowBefore < c.EarningsWindowUntil {
		return fmt.Errorf("%w: 财报窗口 before=%d until=%d 非法", ErrConfiguration,
			c.EarningsWindowBefore, c.EarningsWindowUntil)
	}
	for _, k := range c.Patterns {
		if _, ok := pattern.Lookup(k); !ok {
			return fmt.Errorf("%w: 未知形态 %s", ErrConfiguration, k)
		}
	}
	return nil
}
