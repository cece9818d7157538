package ward_test

import . "github.com/wardauth/ward"

// Aliases keeping the external test files textually identical to their
// original in-package form.

var (
	defaultConfig       = DefaultConfigForTest
	hotpCode            = HotpCodeForTest
	newAuditDispatcher  = NewAuditDispatcherForTest
	verifyLatencyBounds = VerifyLatencyBoundsForTest
)
