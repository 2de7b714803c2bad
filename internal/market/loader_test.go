package market

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDailyCSV(t *testing.T) {
	t.Run("标准文件", func(t *testing.T) {
		csv := strings.Join([]string{
			"date,open,high,low,close,volume",
			"2024-01-02,185.5,187.1,184.9,186.3,51234000",
			"2024-01-03,186.0,186.8,183.2,184.1,48000000",
		}, "\n")
		bars, err := ParseDailyCSV(strings.NewReader(csv), "aapl")
		assert.NoError(t, err)
		assert.Len(t, bars, 2)
		assert.Equal(t, "AAPL", bars[0].Symbol)
		assert.True(t, bars[0].Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, 185.5, bars[0].Open)
		assert.Equal(t, 184.1, bars[1].Close)
	})

	t.Run("列顺序无关", func(t *testing.T) {
		csv := strings.Join([]string{
			"close,volume,date,open,high,low",
			"186.3,51234000,2024-01-02,185.5,187.1,184.9",
		}, "\n")
		bars, err := ParseDailyCSV(strings.NewReader(csv), "AAPL")
		assert.NoError(t, err)
		assert.Len(t, bars, 1)
		assert.Equal(t, 186.3, bars[0].Close)
	})

	t.Run("缺列报错", func(t *testing.T) {
		csv := "date,open,high,low,close\n2024-01-02,1,2,0.5,1.5"
		_, err := ParseDailyCSV(strings.NewReader(csv), "AAPL")
		assert.Error(t, err)
	})

	t.Run("非法数值报错", func(t *testing.T) {
		csv := "date,open,high,low,close,volume\n2024-01-02,abc,2,0.5,1.5,100"
		_, err := ParseDailyCSV(strings.NewReader(csv), "AAPL")
		assert.Error(t, err)
	})

	t.Run("空 symbol 报错", func(t *testing.T) {
		_, err := ParseDailyCSV(strings.NewReader("date,open,high,low,close,volume"), " ")
		assert.Error(t, err)
	})
}

func TestParseEarningsJSON(t *testing.T) {
	t.Run("results 数组", func(t *testing.T) {
		data := []byte(`{"results":[
			{"ticker":"AAPL","report_date":"2024-01-25"},
			{"ticker":"AAPL","report_date":"2024-04-26"}
		]}`)
		events, err := ParseEarningsJSON(data, "AAPL")
		assert.NoError(t, err)
		assert.Len(t, events, 2)
		assert.True(t, events[0].ReportDate.Equal(time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("顶层数组与 date 回退", func(t *testing.T) {
		data := []byte(`[{"date":"2024-01-25"}]`)
		events, err := ParseEarningsJSON(data, "AAPL")
		assert.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("其他 ticker 被跳过", func(t *testing.T) {
		data := []byte(`{"results":[{"ticker":"MSFT","report_date":"2024-01-25"}]}`)
		events, err := ParseEarningsJSON(data, "AAPL")
		assert.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("非法 JSON 报错", func(t *testing.T) {
		_, err := ParseEarningsJSON([]byte(`{"results":`), "AAPL")
		assert.Error(t, err)
	})

	t.Run("非法日期报错", func(t *testing.T) {
		_, err := ParseEarningsJSON([]byte(`[{"report_date":"not-a-date"}]`), "AAPL")
		assert.Error(t, err)
	})
}
