package backtest

import (
	"encoding/json"
	"time"

	"candlelab/internal/pattern"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// ExitReason 表示一笔模拟交易的出场原因。
type ExitReason string

const (
	ExitStopWin   ExitReason = "stop_win"
	ExitStopLoss  ExitReason = "stop_loss"
	ExitEndOfData ExitReason = "end_of_data"
)

// Trade 记录一笔已完成的模拟交易。
type Trade struct {
	ID                int64             `json:"id,omitempty"`
	RunID             string            `json:"run_id,omitempty"`
	Symbol            string            `json:"symbol"`
	Pattern           pattern.Kind      `json:"pattern_kind"`
	Direction         pattern.Direction `json:"direction"`
	SignalDate        time.Time         `json:"signal_date"`
	EntryDate         time.Time         `json:"entry_date"`
	EntryPrice        float64           `json:"entry_price"`
	ExitDate          time.Time         `json:"exit_date"`
	ExitPrice         float64           `json:"exit_price"`
	ExitReason        ExitReason        `json:"exit_reason"`
	GrossReturn       float64           `json:"gross_return"`
	NetReturn         float64           `json:"net_return"`
	HoldingDays       int               `json:"holding_days"`
	HasRecentEarnings bool              `json:"has_recent_earnings"`
	Context           json.RawMessage   `json:"context,omitempty"`
}

// Win 表示净收益为正。
func (t Trade) Win() bool { return t.NetReturn > 0 }

// SymbolError 记录某个 symbol 处理失败的原因，失败不影响其余 symbol。
type SymbolError struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

// SymbolWarning 记录被跳过的空输入 symbol。
type SymbolWarning struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

// RunStats 汇总整次回测的执行情况，供前端展示。
type RunStats struct {
	Symbols        int             `json:"symbols"`
	SymbolsOK      int             `json:"symbols_ok"`
	Signals        int             `json:"signals"`
	Trades         int             `json:"trades"`
	DroppedSignals int             `json:"dropped_signals"`
	Errors         []SymbolError   `json:"errors,omitempty"`
	Warnings       []SymbolWarning `json:"warnings,omitempty"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// Run 表示一次回测任务。
type Run struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Symbols     []string   `json:"symbols"`
	Message     string     `json:"message"`
	Config      RunConfig  `json:"config"`
	Stats       RunStats   `json:"stats"`
	Summary     SummarySet `json:"summary"`
	Trades      int        `json:"trades"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt time.Time  `json:"completed_at"`
}

// RunRequest 为 HTTP 提交使用。symbols 为空表示使用数据目录下全部 symbol。
type RunRequest struct {
	Symbols            []string       `json:"symbols"`
	Patterns           []pattern.Kind `json:"patterns"`
	StopWinPct         float64        `json:"stop_win_pct"`
	StopLossPct        float64        `json:"stop_loss_pct"`
	TransactionCostPct float64        `json:"transaction_cost_pct"`
	MaxHoldingDays     int            `json:"max_holding_days"`
	IndicatorContext   bool           `json:"indicator_context"`
}

// apply 以 base 为底、请求字段为覆盖，构造本次 run 的参数快照。
func (r RunRequest) apply(base RunConfig) RunConfig {
	cfg := base
	if r.StopWinPct != 0 {
		cfg.StopWinPct = r.StopWinPct
	}
	if r.StopLossPct != 0 {
		cfg.StopLossPct = r.StopLossPct
	}
	if r.TransactionCostPct != 0 {
		cfg.TransactionCostPct = r.TransactionCostPct
	}
	if r.MaxHoldingDays != 0 {
		cfg.MaxHoldingDays = r.MaxHoldingDays
	}
	if len(r.Patterns) > 0 {
		cfg.Patterns = r.Patterns
	}
	if r.IndicatorContext {
		cfg.IndicatorContext = true
	}
	cfg.Normalize()
	return cfg
}
