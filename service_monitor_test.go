package schemekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestOpMonitor tests the operation monitor counters and aggregates
func TestOpMonitor(t *testing.T) {
	t.Run("Fresh monitor is zeroed", func(t *testing.T) {
		m := newOpMonitor()
		metrics := m.getMetrics()

		assert.Zero(t, metrics.TotalTransactions)
		assert.Zero(t, metrics.TotalAuthorityChecks)
		assert.Zero(t, metrics.AverageDuration)
		assert.False(t, metrics.LastReset.IsZero())
	})

	t.Run("Transaction counters", func(t *testing.T) {
		m := newOpMonitor()
		m.recordTransaction(10*time.Millisecond, true)
		m.recordTransaction(20*time.Millisecond, true)
		m.recordTransaction(30*time.Millisecond, false)

		metrics := m.getMetrics()
		assert.Equal(t, int64(3), metrics.TotalTransactions)
		assert.Equal(t, int64(2), metrics.SuccessfulTransactions)
		assert.Equal(t, int64(1), metrics.FailedTransactions)
	})

	t.Run("Authority check counters", func(t *testing.T) {
		m := newOpMonitor()
		m.recordAuthorityCheck(time.Millisecond, true)
		m.recordAuthorityCheck(time.Millisecond, false)
		m.recordAuthorityCheck(time.Millisecond, false)

		metrics := m.getMetrics()
		assert.Equal(t, int64(3), metrics.TotalAuthorityChecks)
		assert.Equal(t, int64(1), metrics.GrantedAuthorityChecks)
		assert.Equal(t, int64(2), metrics.DeniedAuthorityChecks)
	})

	t.Run("Duration aggregates", func(t *testing.T) {
		m := newOpMonitor()
		m.recordTransaction(10*time.Millisecond, true)
		m.recordAuthorityCheck(30*time.Millisecond, true)
		m.recordAuthorityCheck(20*time.Millisecond, false)

		metrics := m.getMetrics()
		assert.Equal(t, 20*time.Millisecond, metrics.AverageDuration)
		assert.Equal(t, 30*time.Millisecond, metrics.MaxDuration)
		assert.Equal(t, 10*time.Millisecond, metrics.MinDuration)
	})

	t.Run("Reset clears everything", func(t *testing.T) {
		m := newOpMonitor()
		m.recordTransaction(time.Second, false)
		m.recordAuthorityCheck(time.Second, true)

		before := m.getMetrics()
		time.Sleep(time.Millisecond)
		m.reset()
		after := m.getMetrics()

		assert.Zero(t, after.TotalTransactions)
		assert.Zero(t, after.FailedTransactions)
		assert.Zero(t, after.TotalAuthorityChecks)
		assert.Zero(t, after.AverageDuration)
		assert.Zero(t, after.MaxDuration)
		assert.True(t, after.LastReset.After(before.LastReset))
	})
}

// TestIsOperationHealthy tests the health thresholds
func TestIsOperationHealthy(t *testing.T) {
	newService := func() *Service {
		return &Service{monitor: newOpMonitor()}
	}

	t.Run("Low traffic is always healthy", func(t *testing.T) {
		s := newService()
		for i := 0; i < 5; i++ {
			s.monitor.recordTransaction(time.Millisecond, false)
		}
		assert.True(t, s.IsOperationHealthy())
	})

	t.Run("High failure rate is unhealthy", func(t *testing.T) {
		s := newService()
		for i := 0; i < 18; i++ {
			s.monitor.recordTransaction(time.Millisecond, true)
		}
		for i := 0; i < 2; i++ {
			s.monitor.recordTransaction(time.Millisecond, false)
		}
		// 10% failure rate over 20 transactions
		assert.False(t, s.IsOperationHealthy())
	})

	t.Run("Slow operations are unhealthy", func(t *testing.T) {
		s := newService()
		for i := 0; i < 20; i++ {
			s.monitor.recordAuthorityCheck(2*time.Second, true)
		}
		assert.False(t, s.IsOperationHealthy())
	})

	t.Run("Fast successful traffic is healthy", func(t *testing.T) {
		s := newService()
		for i := 0; i < 20; i++ {
			s.monitor.recordTransaction(time.Millisecond, true)
			s.monitor.recordAuthorityCheck(time.Millisecond, true)
		}
		assert.True(t, s.IsOperationHealthy())

		metrics := s.GetOperationMetrics()
		assert.Equal(t, int64(20), metrics.TotalTransactions)
		assert.Equal(t, int64(20), metrics.TotalAuthorityChecks)

		s.ResetOperationMetrics()
		assert.Zero(t, s.GetOperationMetrics().TotalTransactions)
	})
}
