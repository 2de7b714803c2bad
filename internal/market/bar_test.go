package market

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testBar(n int, open, close float64) Bar {
	return Bar{
		Symbol: "TEST",
		Date:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n),
		Open:   open,
		High:   open + 1,
		Low:    open - 1,
		Close:  close,
		Volume: 100,
	}
}

func TestValidateSeries(t *testing.T) {
	t.Run("合法序列", func(t *testing.T) {
		bars := []Bar{testBar(0, 10, 10.5), testBar(1, 10.5, 10.2), testBar(3, 10.2, 10.4)}
		assert.NoError(t, ValidateSeries(bars))
	})

	t.Run("日期重复", func(t *testing.T) {
		bars := []Bar{testBar(0, 10, 10.5), testBar(0, 10.5, 10.2)}
		err := ValidateSeries(bars)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrDataIntegrity))
	})

	t.Run("日期乱序", func(t *testing.T) {
		bars := []Bar{testBar(2, 10, 10.5), testBar(1, 10.5, 10.2)}
		assert.ErrorIs(t, ValidateSeries(bars), ErrDataIntegrity)
	})

	t.Run("非正价格", func(t *testing.T) {
		bad := testBar(0, 10, 10.5)
		bad.Low = 0
		assert.ErrorIs(t, ValidateSeries([]Bar{bad}), ErrDataIntegrity)
	})

	t.Run("空序列合法", func(t *testing.T) {
		assert.NoError(t, ValidateSeries(nil))
	})
}

func TestIndexOfDate(t *testing.T) {
	bars := []Bar{testBar(0, 10, 10.5), testBar(2, 10.5, 10.2), testBar(5, 10.2, 10.4)}
	assert.Equal(t, 0, IndexOfDate(bars, bars[0].Date))
	assert.Equal(t, 1, IndexOfDate(bars, bars[1].Date))
	assert.Equal(t, 2, IndexOfDate(bars, bars[2].Date))
	// 缺口日期与越界日期都找不到。
	assert.Equal(t, -1, IndexOfDate(bars, testBar(1, 0, 0).Date))
	assert.Equal(t, -1, IndexOfDate(bars, testBar(9, 0, 0).Date))
	assert.Equal(t, -1, IndexOfDate(nil, bars[0].Date))
}

func TestDayTruncation(t *testing.T) {
	ts := time.Date(2024, 3, 5, 15, 30, 45, 0, time.FixedZone("EST", -5*3600))
	d := Day(ts)
	assert.True(t, d.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, d.Location())
}

func TestBarBody(t *testing.T) {
	b := testBar(0, 10, 10.5)
	assert.True(t, b.Bullish())
	assert.False(t, b.Bearish())
	assert.InDelta(t, 0.5, b.Body(), 1e-9)

	flat := testBar(0, 10, 10)
	assert.False(t, flat.Bullish())
	assert.False(t, flat.Bearish())
}
