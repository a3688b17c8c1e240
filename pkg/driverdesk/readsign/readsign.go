// Package readsign implements the signature scheme for the public file read
// path. A read signature is hex(HMAC-SHA256(secret, key)) computed over the
// URL-decoded object key. The signature binds to the key, not the object's
// content: replacing the bytes at a key does not invalidate previously issued
// signatures. The key itself is not secret; unsigned access must fail.
package readsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrMissingSignature indicates no signature was supplied.
	ErrMissingSignature = errors.New("missing signature")

	// ErrInvalidSignature indicates the supplied signature does not match.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNoSecret indicates the signer was constructed without a secret.
	ErrNoSecret = errors.New("signing secret is not configured")
)

// Signer signs and verifies object keys with a shared secret. The secret is
// distinct from any user-facing auth token.
type Signer struct {
	secret []byte
}

// New creates a Signer for the given secret.
func New(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	return &Signer{secret: secret}, nil
}

// Sign returns the hex HMAC-SHA256 signature for a decoded object key. The
// caller must pass the same decoded form the verifier will see; any encoding
// asymmetry between producer and verifier breaks every signature.
func (s *Signer) Sign(key string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a caller-supplied signature against the expected one using a
// constant-time comparison.
func (s *Signer) Verify(key, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	expected := s.Sign(key)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
