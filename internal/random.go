package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// Code generates a numeric one-time code of the given length using a
// cryptographically secure source. A uniform 32-bit draw is rejected when it
// falls into the truncated tail of the range, so the reduction carries no
// modulo bias.
func Code(digits int) (string, error) {
	if digits < 4 || digits > 9 {
		return "", errors.New("invalid otp digits")
	}

	span := uint32(1)
	for i := 0; i < digits; i++ {
		span *= 10
	}
	// Largest multiple of span representable in 32 bits.
	limit := ^uint32(0) - ^uint32(0)%span

	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		v := binary.BigEndian.Uint32(buf[:])
		if v >= limit {
			continue
		}
		return formatCode(v%span, digits), nil
	}
}

func formatCode(v uint32, digits int) string {
	out := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		out[i] = byte('0' + v%10)
		v /= 10
	}
	return string(out)
}

// HashCode returns the SHA-256 digest of a code. Only the digest is ever
// stored or compared; the raw code leaves the process exactly once, inside
// the outbound notification.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// HashToken returns the SHA-256 digest of a refresh token.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}
