package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const gcmPrefix = "gcm1"

var ErrNotSealed = errors.New("blob is not sealed")

// SealedStore encrypts every blob with AES-GCM before handing it to the inner
// backend. Layout: "gcm1" | nonce | ciphertext.
type SealedStore struct {
	inner Blobs
	aead  cipher.AEAD
}

// NewSealedStore wraps inner. key must be 16, 24 or 32 bytes.
func NewSealedStore(inner Blobs, key []byte) (*SealedStore, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SealedStore{inner: inner, aead: gcm}, nil
}

func (s *SealedStore) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(gcmPrefix)+len(nonce)+len(plaintext)+s.aead.Overhead())
	out = append(out, gcmPrefix...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plaintext, nil), nil
}

func (s *SealedStore) open(blob []byte) ([]byte, error) {
	if len(blob) < len(gcmPrefix) || string(blob[:len(gcmPrefix)]) != gcmPrefix {
		return nil, ErrNotSealed
	}
	nonceSize := s.aead.NonceSize()
	if len(blob) < len(gcmPrefix)+nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce := blob[len(gcmPrefix) : len(gcmPrefix)+nonceSize]
	return s.aead.Open(nil, nonce, blob[len(gcmPrefix)+nonceSize:], nil)
}

func (s *SealedStore) Read(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.open(blob)
	if err != nil {
		return nil, fmt.Errorf("unseal session %s: %w", key, err)
	}
	return plaintext, nil
}

func (s *SealedStore) Write(ctx context.Context, key string, data []byte) error {
	blob, err := s.seal(data)
	if err != nil {
		return fmt.Errorf("seal session %s: %w", key, err)
	}
	return s.inner.Write(ctx, key, blob)
}

func (s *SealedStore) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}
