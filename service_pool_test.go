package schemekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPoolConfigs tests the predefined connection pool configurations
func TestPoolConfigs(t *testing.T) {
	t.Run("DefaultPoolConfig", func(t *testing.T) {
		cfg := DefaultPoolConfig()

		assert.Equal(t, 25, cfg.MaxOpenConnections)
		assert.Equal(t, 5, cfg.MaxIdleConnections)
		assert.NotZero(t, cfg.ConnectionMaxLifetime)
		assert.NotZero(t, cfg.ConnectionMaxIdleTime)
	})

	t.Run("HighPerformancePoolConfig", func(t *testing.T) {
		cfg := HighPerformancePoolConfig()

		assert.Greater(t, cfg.MaxOpenConnections, DefaultPoolConfig().MaxOpenConnections)
		assert.Greater(t, cfg.MaxIdleConnections, DefaultPoolConfig().MaxIdleConnections)
		assert.LessOrEqual(t, cfg.MaxIdleConnections, cfg.MaxOpenConnections)
	})
}
