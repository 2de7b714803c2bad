package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ParseDailyCSV 解析下载器输出的日线 CSV（表头 date,open,high,low,close,volume）。
func ParseDailyCSV(r io.Reader, symbol string) ([]Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取 CSV 失败: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	cols, err := csvColumnIndex(records[0])
	if err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, len(records)-1)
	for line, rec := range records[1:] {
		bar, err := parseBarRecord(rec, cols, symbol)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line+2, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func csvColumnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV 缺少列 %s", required)
		}
	}
	return cols, nil
}

func parseBarRecord(rec []string, cols map[string]int, symbol string) (Bar, error) {
	field := func(name string) string {
		idx := cols[name]
		if idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}
	date, err := parseDate(field("date"))
	if err != nil {
		return Bar{}, err
	}
	bar := Bar{Symbol: symbol, Date: date}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low},
		{"close", &bar.Close}, {"volume", &bar.Volume},
	} {
		v, err := strconv.ParseFloat(field(f.name), 64)
		if err != nil {
			return Bar{}, fmt.Errorf("列 %s 非法: %w", f.name, err)
		}
		*f.dst = v
	}
	return bar, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期 %q", s)
}

// ParseEarningsJSON 解析 polygon 风格的财报事件 JSON。
// 支持顶层 results 数组，事件字段取 report_date（回退 date）。
func ParseEarningsJSON(data []byte, symbol string) ([]EarningsEvent, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("财报 JSON 非法")
	}
	root := gjson.ParseBytes(data)
	results := root.Get("results")
	if !results.Exists() {
		results = root
	}
	if !results.IsArray() {
		return nil, fmt.Errorf("财报 JSON 缺少 results 数组")
	}
	var events []EarningsEvent
	var parseErr error
	results.ForEach(func(_, item gjson.Result) bool {
		raw := item.Get("report_date").String()
		if raw == "" {
			raw = item.Get("date").String()
		}
		if raw == "" {
			return true
		}
		date, err := parseDate(raw)
		if err != nil {
			parseErr = fmt.Errorf("report_date %q: %w", raw, err)
			return false
		}
		if ticker := item.Get("ticker").String(); ticker != "" && !strings.EqualFold(ticker, symbol) {
			return true
		}
		events = append(events, EarningsEvent{Symbol: symbol, ReportDate: date})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return events, nil
}
