// Package store persists browser sessions between runs.
//
// Backends hold opaque blobs under a key (FileStore, SQLiteStore). SealedStore
// encrypts blobs on the way in and out, and Sessions encodes cookie sets to
// blobs so any backend can serve as a client.SessionStore.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"flashbuy-bot/client"
)

// Blobs is a keyed byte store.
type Blobs interface {
	// Read returns an error wrapping client.ErrSessionNotFound when key is absent.
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKey rejects keys that could escape a directory or collide with
// temp files.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid session key %q", key)
	}
	return nil
}

// Sessions adapts a Blobs backend to client.SessionStore. Cookies are kept
// as a JSON array with expiry removed.
type Sessions struct {
	blobs Blobs
}

func NewSessions(b Blobs) *Sessions {
	return &Sessions{blobs: b}
}

func (s *Sessions) Load(ctx context.Context, key string) ([]client.Cookie, error) {
	data, err := s.blobs.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	var cookies []client.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", key, err)
	}
	return cookies, nil
}

func (s *Sessions) Save(ctx context.Context, key string, cookies []client.Cookie) error {
	data, err := json.Marshal(client.StripExpiry(cookies))
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", key, err)
	}
	return s.blobs.Write(ctx, key, data)
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *Sessions) Delete(ctx context.Context, key string) error {
	err := s.blobs.Remove(ctx, key)
	if errors.Is(err, client.ErrSessionNotFound) {
		return nil
	}
	return err
}

var _ client.SessionStore = (*Sessions)(nil)
