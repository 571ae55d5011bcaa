// Package marketauth implements the authentication and OTP security
// subsystem of the TradeKart marketplace backend: two-phase registration
// with email verification, multi-tier rate limiting with brute-force
// lockout, password reset, and the access/refresh token lifecycle with
// single-use rotation.
//
// The package is an embeddable engine, not a server. Callers construct an
// [Engine] through the [Builder], hand it a Redis client, a durable
// [UserStore], and a [notify.Notifier], and invoke operations from their
// own transport layer:
//
//	engine, err := marketauth.New().
//		WithRedis(redisClient).
//		WithUserStore(users).
//		WithNotifier(mailer).
//		Build()
//
// All transient security state (active codes, counters, cooldowns, locks,
// pending registrations, refresh-token records) lives in Redis under TTLs;
// the engine keeps no background scheduler. Only durable user rows cross
// into the caller-supplied store.
package marketauth
