package rate

import "errors"

// ErrRateLimited is an exported constant or variable used by the authentication engine.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
var ErrRedisUnavailable = errors.New("rate redis unavailable")
