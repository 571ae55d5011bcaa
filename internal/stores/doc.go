// Package stores implements the Redis-backed state for the authentication
// flows: active OTP digests, pending registrations, reset-authorized
// markers, and refresh-token records. Consume-style operations run as Lua
// scripts so that two concurrent requests can never both observe and claim
// the same record. All expiry is delegated to Redis key TTLs.
package stores
