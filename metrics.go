package fleetAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricChallengeIssued counts codes issued and stored.
	MetricChallengeIssued MetricID = iota
	// MetricChallengeRateLimited counts challenge requests denied by the throttle.
	MetricChallengeRateLimited
	// MetricChallengeDeliveryFailed counts codes the notifier failed to send.
	MetricChallengeDeliveryFailed
	// MetricChallengeVerifySuccess counts codes accepted.
	MetricChallengeVerifySuccess
	// MetricChallengeVerifyFailure counts wrong, expired or missing codes.
	MetricChallengeVerifyFailure
	// MetricChallengeAttemptsExceeded counts verifications refused at the attempt ceiling.
	MetricChallengeAttemptsExceeded
	// MetricPrincipalRegistered counts principals created by self-registration.
	MetricPrincipalRegistered
	// MetricLoginSuccess counts completed challenges that issued tokens.
	MetricLoginSuccess
	// MetricLoginFailure counts completed challenges that did not issue tokens.
	MetricLoginFailure
	// MetricLoginNotApproved counts logins refused by the approval gate.
	MetricLoginNotApproved
	// MetricRefreshSuccess counts refreshed access tokens.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refused refreshes.
	MetricRefreshFailure
	// MetricRefreshRateLimited counts refreshes denied by the throttle.
	MetricRefreshRateLimited
	// MetricValidateSuccess counts accepted access tokens.
	MetricValidateSuccess
	// MetricValidateFailure counts rejected access tokens.
	MetricValidateFailure
	// MetricTokenRevoked counts tokens added to the revocation registry.
	MetricTokenRevoked
	// MetricRevokedTokenPresented counts revoked tokens presented for validation or refresh.
	MetricRevokedTokenPresented
	// MetricLogout counts logouts of known principals.
	MetricLogout
	// MetricTeardownFailure counts teardown patterns that failed during logout.
	MetricTeardownFailure
	// MetricValidateLatency is the access-token validation latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram.
// A nil or disabled Metrics ignores every call.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricValidateLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Histograms are present only when latency
// histograms are enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
