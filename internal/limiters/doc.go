// Package limiters implements the Redis-backed send throttles, failure
// counters, and time-boxed locks that guard the OTP flows. Counters use
// fixed-window INCR semantics with the window TTL set on the first hit;
// every mutation is a single Redis round-trip so concurrent requests for
// the same identity cannot both slip under a threshold.
package limiters
