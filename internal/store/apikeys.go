// ABOUTME: API key persistence on SQLiteStore
// ABOUTME: Create, look up, list, revoke, and record last use of managed API keys

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAPIKey inserts key. An empty ID is filled with a new UUID.
// Returns ErrDuplicateKey if the ID is taken.
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO api_keys (id, name, hash, created_at, last_used_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		key.ID,
		key.Name,
		key.Hash,
		key.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullTime(key.LastUsedAt),
		nullTime(key.RevokedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("inserting api key: %w", err)
	}

	s.logger.Debug("created api key", "id", key.ID, "name", key.Name)
	return nil
}

// GetAPIKey retrieves a key by ID.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStore) GetAPIKey(ctx context.Context, id string) (*APIKey, error) {
	query := `
		SELECT id, name, hash, created_at, last_used_at, revoked_at
		FROM api_keys
		WHERE id = ?
	`

	key, err := scanAPIKey(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	return key, nil
}

// ListAPIKeys returns every key, oldest first.
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]*APIKey, error) {
	query := `
		SELECT id, name, hash, created_at, last_used_at, revoked_at
		FROM api_keys
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey marks a key revoked. Revoking twice keeps the first timestamp.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Info("revoked api key", "id", id)
	return nil
}

// TouchAPIKey records the last time a key authenticated a request.
func (s *SQLiteStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var key APIKey
	var createdAt string
	var lastUsed, revoked sql.NullString

	if err := row.Scan(&key.ID, &key.Name, &key.Hash, &createdAt, &lastUsed, &revoked); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", key.ID, err)
	}
	key.CreatedAt = parsed

	if key.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
		return nil, fmt.Errorf("parsing last_used_at for %s: %w", key.ID, err)
	}
	if key.RevokedAt, err = parseNullTime(revoked); err != nil {
		return nil, fmt.Errorf("parsing revoked_at for %s: %w", key.ID, err)
	}
	return &key, nil
}
