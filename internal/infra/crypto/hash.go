package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"memochain/internal/domain"
)

// DigestHexLen is the length of a hex-encoded SHA-256 digest.
const DigestHexLen = sha256.Size * 2

// Digest content-addresses b. Identical bytes always yield the identical digest,
// which is what lets verify-by-upload agree with verify-by-hash.
func Digest(b []byte) string {
	return sha256Hex(b)
}

func DigestReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ParseDigest validates a caller-supplied digest and returns it lowercased.
func ParseDigest(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != DigestHexLen {
		return "", fmt.Errorf("%w: %w: want %d hex characters, got %d", domain.ErrValidation, domain.ErrInvalidHash, DigestHexLen, len(s))
	}
	s = strings.ToLower(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %w: non-hex character at offset %d", domain.ErrValidation, domain.ErrInvalidHash, i)
		}
	}
	return s, nil
}

// IsDigest reports whether s is a canonical lowercase hex SHA-256 digest.
func IsDigest(s string) bool {
	parsed, err := ParseDigest(s)
	return err == nil && parsed == s
}

func sha256Bytes(input []byte) []byte {
	sum := sha256.Sum256(input)
	return sum[:]
}

func sha256Hex(input []byte) string {
	return hex.EncodeToString(sha256Bytes(input))
}

// LeafHash is the Merkle leaf digest of a transaction: SHA-256(0x00 || JCS(tx)).
func LeafHash(tx domain.Transaction) ([]byte, error) {
	canonical, err := CanonicalizeAny(tx)
	if err != nil {
		return nil, fmt.Errorf("canonicalize transaction: %w", err)
	}
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(canonical)
	return h.Sum(nil), nil
}
