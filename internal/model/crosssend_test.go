package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCrossSendConfigMerge(t *testing.T) {
	base := DefaultConfig().CrossSend

	t.Run("nil override returns base", func(t *testing.T) {
		assert.Equal(t, base, base.Merge(nil))
	})

	t.Run("non-zero fields win", func(t *testing.T) {
		merged := base.Merge(&CrossSendConfig{
			Strategy:  StrategyParallel,
			SendDelay: 5 * time.Second,
			Priority:  1,
		})
		assert.Equal(t, StrategyParallel, merged.Strategy)
		assert.Equal(t, 5*time.Second, merged.SendDelay)
		assert.Equal(t, 1, merged.Priority)

		// Untouched fields keep the base values.
		assert.Equal(t, base.BatchSize, merged.BatchSize)
		assert.Equal(t, base.MaxAttempts, merged.MaxAttempts)
	})

	t.Run("boolean flags are sticky", func(t *testing.T) {
		merged := base.Merge(&CrossSendConfig{ShuffleSenders: true, RandomizeContent: true})
		assert.True(t, merged.ShuffleSenders)
		assert.True(t, merged.RandomizeContent)
		assert.Equal(t, base.CollectStats, merged.CollectStats)
	})
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(0, 0))
	assert.Equal(t, 0.0, Ratio(5, 0))
	assert.Equal(t, 0.5, Ratio(1, 2))
	assert.Equal(t, 1.0, Ratio(3, 3))
}
