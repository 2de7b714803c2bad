package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"candlelab/internal/market"
)

func TestHammerDetect(t *testing.T) {
	det, ok := Lookup(KindHammer)
	assert.True(t, ok)

	t.Run("阴线后长下影触发", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 10.5, 10.6, 10.0, 10.1),  // 阴线
			bar(1, 10.1, 10.125, 9.7, 10.12), // 实体 0.02，下影 0.4，上影 0.005
		}
		signals := det.Detect(bars)
		assert.Len(t, signals, 1)
		assert.Equal(t, DirectionLong, signals[0].Direction)
	})

	t.Run("上影过长不触发", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 10.5, 10.6, 10.0, 10.1),
			bar(1, 10.1, 10.5, 9.7, 10.12),
		}
		assert.Empty(t, det.Detect(bars))
	})

	t.Run("前一根非阴线不触发", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 10.0, 10.6, 9.9, 10.5),
			bar(1, 10.1, 10.125, 9.7, 10.12),
		}
		assert.Empty(t, det.Detect(bars))
	})
}

func TestShootingStarDetect(t *testing.T) {
	det, ok := Lookup(KindShootingStar)
	assert.True(t, ok)

	bars := []market.Bar{
		bar(0, 10.0, 10.6, 9.9, 10.5),    // 阳线
		bar(1, 10.5, 10.9, 10.49, 10.52), // 实体 0.02，上影 0.38，下影 0.01
	}
	signals := det.Detect(bars)
	assert.Len(t, signals, 1)
	assert.Equal(t, DirectionShort, signals[0].Direction)
}

func TestDojiDetect(t *testing.T) {
	det, ok := Lookup(KindDoji)
	assert.True(t, ok)

	bars := []market.Bar{
		bar(0, 10.0, 10.3, 9.9, 10.2),
		bar(1, 10.2, 10.5, 9.9, 10.22), // 实体 0.02，全幅 0.6
	}
	signals := det.Detect(bars)
	assert.Len(t, signals, 1)
	assert.Equal(t, DirectionNone, signals[0].Direction)
}

func TestRegistry(t *testing.T) {
	t.Run("内置形态全部注册", func(t *testing.T) {
		kinds := Kinds()
		assert.Contains(t, kinds, KindBullishEngulfing)
		assert.Contains(t, kinds, KindBearishEngulfing)
		assert.Contains(t, kinds, KindHammer)
		assert.Contains(t, kinds, KindShootingStar)
		assert.Contains(t, kinds, KindDoji)
	})

	t.Run("空列表解析为全部", func(t *testing.T) {
		detectors, err := Resolve(nil)
		assert.NoError(t, err)
		assert.Len(t, detectors, len(Kinds()))
	})

	t.Run("未知形态报错", func(t *testing.T) {
		_, err := Resolve([]Kind{"head_and_shoulders"})
		assert.Error(t, err)
	})
}
