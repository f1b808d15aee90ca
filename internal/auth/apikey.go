// ABOUTME: Managed API keys: generation, bcrypt hashing, and store-backed verification
// ABOUTME: Tokens have the form rgk_<id>_<secret>; only the secret's hash is stored

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/rcon-gateway/internal/store"
)

// APIKeyPrefix starts every managed API key token.
const APIKeyPrefix = "rgk_"

// lookupTimeout bounds the store lookup made while verifying a key.
const lookupTimeout = 5 * time.Second

// NewAPIKey creates a key record named name and returns it together with the
// plaintext token, which is not recoverable later.
func NewAPIKey(name string) (*store.APIKey, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating key secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing key secret: %w", err)
	}

	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	key := &store.APIKey{
		ID:        id,
		Name:      name,
		Hash:      string(hash),
		CreatedAt: time.Now().UTC(),
	}
	return key, APIKeyPrefix + id + "_" + secret, nil
}

// splitAPIKey separates a token into its key ID and secret.
func splitAPIKey(token string) (id, secret string, ok bool) {
	rest, found := strings.CutPrefix(token, APIKeyPrefix)
	if !found {
		return "", "", false
	}
	id, secret, found = strings.Cut(rest, "_")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

// APIKeyVerifier checks managed API keys against an APIKeyStore.
type APIKeyVerifier struct {
	keys   store.APIKeyStore
	logger *slog.Logger
}

// NewAPIKeyVerifier creates a verifier backed by keys.
func NewAPIKeyVerifier(keys store.APIKeyStore, logger *slog.Logger) *APIKeyVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyVerifier{keys: keys, logger: logger.With("component", "apikeys")}
}

// Verify implements TokenVerifier. Revoked keys are rejected.
func (v *APIKeyVerifier) Verify(tokenString string) (string, error) {
	id, secret, ok := splitAPIKey(tokenString)
	if !ok {
		return "", ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	key, err := v.keys.GetAPIKey(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%w: unknown key", ErrInvalidToken)
	}
	if key.Revoked() {
		return "", fmt.Errorf("%w: key revoked", ErrInvalidToken)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(secret)); err != nil {
		return "", ErrInvalidToken
	}

	if err := v.keys.TouchAPIKey(ctx, id, time.Now()); err != nil {
		v.logger.Warn("failed to record api key use", "id", id, "error", err)
	}
	return "apikey:" + id, nil
}
