// Package jwt manages access and refresh token issuance and verification
// with strict validation semantics suitable for low-latency authentication
// paths. Access and refresh tokens are signed with independent secrets so a
// leaked refresh token can never pass as an access token, and vice versa.
package jwt
