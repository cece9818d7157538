package internaldefs

import (
	"github.com/wardauth/ward"
)

// CounterDef defines a public type used by ward APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   ward.MetricID
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: ward.MetricLoginSuccess, Help: "Successful logins, password and provider alike."},
	{ID: ward.MetricLoginFailure, Help: "Rejected login attempts."},
	{ID: ward.MetricLoginLocked, Help: "Login attempts rejected by an active lockout."},
	{ID: ward.MetricChallengeRequired, Help: "Password logins paused for a second-factor code."},
	{ID: ward.MetricSecondFactorRejected, Help: "Rejected second-factor codes."},
	{ID: ward.MetricPairsIssued, Help: "Issued access/refresh token pairs."},
	{ID: ward.MetricRotations, Help: "Successful refresh rotations."},
	{ID: ward.MetricReuseDetections, Help: "Detected refresh token reuses."},
	{ID: ward.MetricChainRevocations, Help: "Revoked refresh chains."},
	{ID: ward.MetricAccessAccepted, Help: "Accepted access tokens."},
	{ID: ward.MetricAccessRejected, Help: "Rejected access tokens."},
	{ID: ward.MetricAdminLocks, Help: "Administrative account locks."},
	{ID: ward.MetricAdminUnlocks, Help: "Administrative account unlocks."},
	{ID: ward.MetricFlowThrottled, Help: "Account-management calls rejected by a flow throttle."},
}

// Shared histogram and audit identifiers. Exporters never invent names.
const (
	HistogramName    = "ward_verify_access_latency_seconds"
	HistogramHelp    = "VerifyAccess latency histogram."
	AuditDroppedName = "ward_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.00005",
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.005",
	"0.025",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_00005",
	"0_0001",
	"0_00025",
	"0_0005",
	"0_001",
	"0_005",
	"0_025",
	"0_1",
	"inf",
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets folds a snapshot's per-bucket counts into the cumulative
// form both exposition formats want, normalized to the exported bound count.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(buckets []ward.LatencyBucket) []uint64 {
	out := make([]uint64, len(HistogramBounds))
	var running uint64
	for i := range out {
		if i < len(buckets) {
			running += buckets[i].Count
		}
		out[i] = running
	}
	return out
}
