// Package keys defines the Redis key namespace shared by the limiters and
// stores. All key construction goes through this package so that a purpose
// can never be expressed as a free-form string.
package keys

// Purpose scopes OTP state so that a verification code and a password-reset
// code for the same email can be in flight independently.
type Purpose int

const (
	Verification Purpose = iota
	PasswordReset
)

func (p Purpose) String() string {
	switch p {
	case PasswordReset:
		return "password_reset"
	default:
		return "verification"
	}
}

// prefix returns the key family prefix for a purpose. The verification
// family keeps the historical short names.
func (p Purpose) prefix() string {
	if p == PasswordReset {
		return "password_reset_"
	}
	return ""
}

// OTP is the hash of the active code for an (email, purpose) pair.
func OTP(p Purpose, email string) string {
	if p == PasswordReset {
		return "password_reset_otp:" + email
	}
	return "otp:" + email
}

// Cooldown marks the minimum delay between sends to one email.
func Cooldown(p Purpose, email string) string {
	return p.prefix() + "otp_cooldown:" + email
}

// SentCount is the fixed-window send counter for one email.
func SentCount(p Purpose, email string) string {
	return p.prefix() + "otp_sent_count:" + email
}

// FailCount is the failed-verification counter for one email.
func FailCount(p Purpose, email string) string {
	return p.prefix() + "otp_attempt_fail:" + email
}

// Lock short-circuits all attempts for one email while present.
func Lock(p Purpose, email string) string {
	return p.prefix() + "otp_lock:" + email
}

// IPSentCount is the fixed-window send counter for one client IP.
// IP volume caps are shared across purposes.
func IPSentCount(ip string) string {
	return "otp_ip_sent_count:" + ip
}

// IPLock short-circuits sends from one client IP while present.
func IPLock(ip string) string {
	return "otp_ip_limit:" + ip
}

// Pending holds unpromoted registration data for one email.
func Pending(email string) string {
	return "registration_data:" + email
}

// ResetVerified is the single-use reset-authorized marker for one email.
func ResetVerified(email string) string {
	return "password_reset_verified:" + email
}

// Refresh holds one refresh-token record, keyed by the hex token hash.
func Refresh(tokenHash string) string {
	return "refresh_token:" + tokenHash
}

// RefreshIndex is the per-user set of active refresh-token hashes.
func RefreshIndex(userID string) string {
	return "refresh_user:" + userID
}
