package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"candlelab/internal/market"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bar(n int, open, high, low, close float64) market.Bar {
	return market.Bar{
		Symbol: "TEST",
		Date:   day(n),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 1000,
	}
}

func TestBullishEngulfingDetect(t *testing.T) {
	det, ok := Lookup(KindBullishEngulfing)
	assert.True(t, ok)

	t.Run("基本吞没", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 10.5, 10.6, 9.9, 10.0),  // 阴线
			bar(1, 9.95, 10.7, 9.9, 10.55), // 阳线实体覆盖前一根
			bar(2, 10.5, 10.8, 10.4, 10.6),
		}
		signals := det.Detect(bars)
		assert.Len(t, signals, 1)
		assert.Equal(t, KindBullishEngulfing, signals[0].Kind)
		assert.Equal(t, DirectionLong, signals[0].Direction)
		assert.Equal(t, "TEST", signals[0].Symbol)
		assert.True(t, signals[0].Date.Equal(day(1)))
	})

	t.Run("实体边界相等也算吞没", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 10.5, 10.6, 9.9, 10.0),
			bar(1, 10.0, 10.7, 9.9, 10.5), // open == prev.close, close == prev.open
		}
		assert.Len(t, det.Detect(bars), 1)
	})

	t.Run("十字星不构成吞没", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 10.0, 10.2, 9.8, 10.0), // open == close
			bar(1, 9.9, 10.8, 9.8, 10.6),
		}
		assert.Empty(t, det.Detect(bars))

		bars = []market.Bar{
			bar(0, 10.5, 10.6, 9.9, 10.0),
			bar(1, 10.2, 10.6, 9.9, 10.2), // 当前为十字星
		}
		assert.Empty(t, det.Detect(bars))
	})

	t.Run("未覆盖实体不触发", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 10.5, 10.6, 9.9, 10.0),
			bar(1, 10.1, 10.5, 10.0, 10.4), // open 高于 prev.close
		}
		assert.Empty(t, det.Detect(bars))
	})

	t.Run("无信号返回空", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 10.0, 10.3, 9.9, 10.2),
			bar(1, 10.2, 10.5, 10.1, 10.4),
			bar(2, 10.4, 10.6, 10.3, 10.5),
		}
		assert.Empty(t, det.Detect(bars))
	})
}

func TestBearishEngulfingDetect(t *testing.T) {
	det, ok := Lookup(KindBearishEngulfing)
	assert.True(t, ok)

	bars := []market.Bar{
		bar(0, 10.0, 10.6, 9.9, 10.5),  // 阳线
		bar(1, 10.55, 10.7, 9.8, 9.95), // 阴线实体覆盖前一根
	}
	signals := det.Detect(bars)
	assert.Len(t, signals, 1)
	assert.Equal(t, KindBearishEngulfing, signals[0].Kind)
	assert.Equal(t, DirectionShort, signals[0].Direction)
	assert.True(t, signals[0].Date.Equal(day(1)))
}
