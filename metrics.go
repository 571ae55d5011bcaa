package marketauth

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricRegisterAccepted MetricID = iota
	MetricRegisterDuplicate
	MetricOTPSent
	MetricOTPSendRateLimited
	MetricOTPSendLocked
	MetricVerifySuccess
	MetricVerifyFailure
	MetricVerifyLocked
	MetricLoginSuccess
	MetricLoginFailure
	MetricRefreshSuccess
	MetricRefreshReplayDetected
	MetricRefreshFailure
	MetricLogout
	MetricResetRequested
	MetricResetCompleted
	MetricStoreUnavailable
	MetricDeliveryFailure
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters for engine operations. A nil or
// disabled Metrics is safe to use and records nothing.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a counter set.
func NewMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	if m == nil || !m.enabled {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
