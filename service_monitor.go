package schemekit

import (
	"sync"
	"time"
)

// OperationMetrics provides performance and failure statistics for the two
// operation classes the engine runs: transactions (writes) and authority
// checks (the request hot path).
type OperationMetrics struct {
	TotalTransactions      int64         `json:"total_transactions"`
	SuccessfulTransactions int64         `json:"successful_transactions"`
	FailedTransactions     int64         `json:"failed_transactions"`
	TotalAuthorityChecks   int64         `json:"total_authority_checks"`
	GrantedAuthorityChecks int64         `json:"granted_authority_checks"`
	DeniedAuthorityChecks  int64         `json:"denied_authority_checks"`
	AverageDuration        time.Duration `json:"average_duration"`
	MaxDuration            time.Duration `json:"max_duration"`
	MinDuration            time.Duration `json:"min_duration"`
	LastReset              time.Time     `json:"last_reset"`
}

// opMonitor holds the internal operation monitoring state
type opMonitor struct {
	mu sync.RWMutex

	txTotal   int64
	txSuccess int64
	txFailure int64

	checkTotal   int64
	checkGranted int64
	checkDenied  int64

	totalDuration time.Duration
	totalOps      int64
	maxDuration   time.Duration
	minDuration   time.Duration
	lastReset     time.Time
}

// newOpMonitor creates a new operation monitor
func newOpMonitor() *opMonitor {
	return &opMonitor{
		minDuration: time.Hour, // Initialize to a large value
		lastReset:   time.Now(),
	}
}

// recordTransaction records a transaction completion with its duration and
// success status
func (m *opMonitor) recordTransaction(duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txTotal++
	if success {
		m.txSuccess++
	} else {
		m.txFailure++
	}
	m.recordDurationLocked(duration)
}

// recordAuthorityCheck records one authority check and its outcome
func (m *opMonitor) recordAuthorityCheck(duration time.Duration, granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkTotal++
	if granted {
		m.checkGranted++
	} else {
		m.checkDenied++
	}
	m.recordDurationLocked(duration)
}

func (m *opMonitor) recordDurationLocked(duration time.Duration) {
	m.totalOps++
	m.totalDuration += duration
	if duration > m.maxDuration {
		m.maxDuration = duration
	}
	if duration < m.minDuration {
		m.minDuration = duration
	}
}

// getMetrics returns the current operation metrics
func (m *opMonitor) getMetrics() OperationMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avgDuration time.Duration
	if m.totalOps > 0 {
		avgDuration = m.totalDuration / time.Duration(m.totalOps)
	}

	return OperationMetrics{
		TotalTransactions:      m.txTotal,
		SuccessfulTransactions: m.txSuccess,
		FailedTransactions:     m.txFailure,
		TotalAuthorityChecks:   m.checkTotal,
		GrantedAuthorityChecks: m.checkGranted,
		DeniedAuthorityChecks:  m.checkDenied,
		AverageDuration:        avgDuration,
		MaxDuration:            m.maxDuration,
		MinDuration:            m.minDuration,
		LastReset:              m.lastReset,
	}
}

// reset resets all metrics
func (m *opMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txTotal = 0
	m.txSuccess = 0
	m.txFailure = 0
	m.checkTotal = 0
	m.checkGranted = 0
	m.checkDenied = 0
	m.totalOps = 0
	m.totalDuration = 0
	m.maxDuration = 0
	m.minDuration = time.Hour
	m.lastReset = time.Now()
}

// GetOperationMetrics returns the current operation performance metrics.
func (s *Service) GetOperationMetrics() OperationMetrics {
	return s.monitor.getMetrics()
}

// ResetOperationMetrics resets all operation metrics.
func (s *Service) ResetOperationMetrics() {
	s.monitor.reset()
}

// IsOperationHealthy checks if operation performance is within acceptable
// thresholds.
func (s *Service) IsOperationHealthy() bool {
	metrics := s.monitor.getMetrics()

	// With very little traffic the rates are noise.
	if metrics.TotalTransactions+metrics.TotalAuthorityChecks < 10 {
		return true
	}

	// Transaction failure rate should stay under 5%.
	if metrics.TotalTransactions > 0 {
		failureRate := float64(metrics.FailedTransactions) / float64(metrics.TotalTransactions)
		if failureRate > 0.05 {
			return false
		}
	}

	// Authority checks sit on the request hot path; average operation time
	// beyond a second means something is wrong.
	return metrics.AverageDuration <= time.Second
}
