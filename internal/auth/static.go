// ABOUTME: Verifier for the static API tokens listed in configuration
// ABOUTME: Compares in constant time and names principals by a token fingerprint

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// StaticTokens accepts a fixed list of tokens.
type StaticTokens struct {
	tokens [][]byte
}

// NewStaticTokens creates a verifier for tokens. Empty entries are ignored.
func NewStaticTokens(tokens []string) *StaticTokens {
	s := &StaticTokens{}
	for _, t := range tokens {
		if t != "" {
			s.tokens = append(s.tokens, []byte(t))
		}
	}
	return s
}

// Len returns how many tokens are configured.
func (s *StaticTokens) Len() int {
	return len(s.tokens)
}

// Verify implements TokenVerifier.
func (s *StaticTokens) Verify(tokenString string) (string, error) {
	candidate := []byte(tokenString)
	match := 0
	for _, t := range s.tokens {
		match |= subtle.ConstantTimeCompare(candidate, t)
	}
	if match != 1 {
		return "", ErrInvalidToken
	}
	return "static:" + Fingerprint(tokenString), nil
}

// Fingerprint returns a short, stable, non-reversible name for a secret,
// safe to put in logs.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}
