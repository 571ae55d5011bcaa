// Package middleware exposes net/http adapters over engine token
// verification.
//
//   - [Guard] — rejects requests without a valid bearer access token and
//     injects the verified claims into the request context.
//   - [RequireRole] — layered inside [Guard], rejects claims whose role is
//     not in the allowed set.
//
// This package translates HTTP semantics into engine calls. It does not
// parse tokens itself and never touches Redis; all decisions are delegated
// to [marketauth.Engine.VerifyAccess].
package middleware
