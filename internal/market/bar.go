package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrDataIntegrity 表示输入数据违反序列约束（日期乱序/重复、信号日期缺失等）。
var ErrDataIntegrity = errors.New("data integrity violation")

// Bar 表示单个交易日的日线 OHLCV 数据。
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Body 返回实体振幅（收盘减开盘，可为负）。
func (b Bar) Body() float64 {
	return b.Close - b.Open
}

// Bullish 判断是否为阳线；open == close 视为无方向。
func (b Bar) Bullish() bool {
	return b.Close > b.Open
}

// Bearish 判断是否为阴线。
func (b Bar) Bearish() bool {
	return b.Close < b.Open
}

// EarningsEvent 表示一次财报公告日，由外部数据源提供。
type EarningsEvent struct {
	Symbol     string    `json:"symbol"`
	ReportDate time.Time `json:"report_date"`
}

// Day 将时间截断到 UTC 自然日，序列内所有日期比较都基于该粒度。
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateSeries 校验单个 symbol 的序列：日期严格递增且唯一，价格为正。
func ValidateSeries(bars []Bar) error {
	for i, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("%w: %s %s 存在非正价格", ErrDataIntegrity, b.Symbol, b.Date.Format("2006-01-02"))
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1]
		if !Day(b.Date).After(Day(prev.Date)) {
			return fmt.Errorf("%w: %s 日期未严格递增（%s → %s）", ErrDataIntegrity,
				b.Symbol, prev.Date.Format("2006-01-02"), b.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// IndexOfDate 在按日期升序的序列中查找指定日期，未找到返回 -1。
func IndexOfDate(bars []Bar, date time.Time) int {
	target := Day(date)
	lo, hi := 0, len(bars)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		d := Day(bars[mid].Date)
		switch {
		case d.Equal(target):
			return mid
		case d.Before(target):
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}
