// Package store persists managed API keys in SQLite.
//
// # Schema
//
// A single table holds every key:
//
//	api_keys(id, name, hash, created_at, last_used_at, revoked_at)
//
// Only the bcrypt hash of a key's secret is stored; the plaintext token is
// shown once when the key is created.
//
// # Implementations
//
//   - SQLiteStore: modernc.org/sqlite (pure Go), WAL journal mode
//   - MockStore: in-memory, for tests
//
// Both satisfy APIKeyStore. Lookups of unknown keys return ErrNotFound.
package store
