package ward

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by ward APIs.
type MetricID uint8

// Engine counters. IDs are dense array indexes; Name returns the stable
// export identifier.
const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricChallengeRequired
	MetricSecondFactorRejected
	MetricPairsIssued
	MetricRotations
	MetricReuseDetections
	MetricChainRevocations
	MetricAccessAccepted
	MetricAccessRejected
	MetricAdminLocks
	MetricAdminUnlocks
	MetricFlowThrottled
	metricCount
)

var metricNames = [metricCount]string{
	MetricLoginSuccess:         "ward_login_success_total",
	MetricLoginFailure:         "ward_login_failure_total",
	MetricLoginLocked:          "ward_login_locked_total",
	MetricChallengeRequired:    "ward_challenge_required_total",
	MetricSecondFactorRejected: "ward_second_factor_rejected_total",
	MetricPairsIssued:          "ward_token_pairs_issued_total",
	MetricRotations:            "ward_token_rotations_total",
	MetricReuseDetections:      "ward_token_reuse_detected_total",
	MetricChainRevocations:     "ward_chain_revocations_total",
	MetricAccessAccepted:       "ward_access_accepted_total",
	MetricAccessRejected:       "ward_access_rejected_total",
	MetricAdminLocks:           "ward_admin_locks_total",
	MetricAdminUnlocks:         "ward_admin_unlocks_total",
	MetricFlowThrottled:        "ward_flow_throttled_total",
}

// Name returns the metric's stable export identifier.
func (id MetricID) Name() string {
	if id >= metricCount {
		return "ward_unknown"
	}
	return metricNames[id]
}

// paddedCounter keeps each counter on its own cache line so concurrent
// increments of different metrics never false-share.
type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// Bucket upper bounds for VerifyAccess latency. The final implicit bucket is
// unbounded.
var verifyLatencyBounds = [...]time.Duration{
	50 * time.Microsecond,
	100 * time.Microsecond,
	250 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	25 * time.Millisecond,
	100 * time.Millisecond,
}

type latencyHistogram struct {
	buckets [len(verifyLatencyBounds) + 1]paddedCounter
	sum     atomic.Uint64 // nanoseconds
	count   atomic.Uint64
}

func (h *latencyHistogram) observe(d time.Duration) {
	if d < 0 {
		d = 0
	}
	idx := len(verifyLatencyBounds)
	for i, bound := range verifyLatencyBounds {
		if d <= bound {
			idx = i
			break
		}
	}
	h.buckets[idx].value.Add(1)
	h.sum.Add(uint64(d.Nanoseconds()))
	h.count.Add(1)
}

type metricsBank struct {
	counters      [metricCount]paddedCounter
	verifyLatency latencyHistogram
}

func (m *metricsBank) inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].value.Add(1)
}

func (m *metricsBank) get(id MetricID) uint64 {
	if m == nil || id >= metricCount {
		return 0
	}
	return m.counters[id].value.Load()
}

func (m *metricsBank) observeVerify(d time.Duration) {
	if m == nil {
		return
	}
	m.verifyLatency.observe(d)
}

// LatencyBucket defines a public type used by ward APIs.
//
// UpperBound zero marks the unbounded final bucket.
type LatencyBucket struct {
	UpperBound time.Duration
	Count      uint64
}

// LatencySnapshot defines a public type used by ward APIs.
type LatencySnapshot struct {
	Count    uint64
	SumNanos uint64
	Buckets  []LatencyBucket
}

// MetricsSnapshot defines a public type used by ward APIs.
//
// A snapshot is a point-in-time copy; counters keep moving after it is
// taken, and reads across counters are not mutually consistent.
type MetricsSnapshot struct {
	Counters            map[string]uint64
	VerifyAccessLatency LatencySnapshot
	AuditDropped        uint64
}

// Metrics returns a point-in-time snapshot of the engine's counter bank, the
// VerifyAccess latency histogram, and the audit drop count.
func (e *Engine) Metrics() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[string]uint64, int(metricCount)),
	}
	if e == nil {
		return snap
	}

	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id.Name()] = e.metrics.get(id)
	}

	h := &e.metrics.verifyLatency
	snap.VerifyAccessLatency = LatencySnapshot{
		Count:    h.count.Load(),
		SumNanos: h.sum.Load(),
		Buckets:  make([]LatencyBucket, 0, len(h.buckets)),
	}
	for i := range h.buckets {
		b := LatencyBucket{Count: h.buckets[i].value.Load()}
		if i < len(verifyLatencyBounds) {
			b.UpperBound = verifyLatencyBounds[i]
		}
		snap.VerifyAccessLatency.Buckets = append(snap.VerifyAccessLatency.Buckets, b)
	}

	if e.audit != nil {
		snap.AuditDropped = e.audit.Dropped()
	}

	return snap
}
