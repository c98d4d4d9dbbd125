package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/zalando/go-keyring"
)

const (
	keyFileName = "session.key"
	keyFileMode = 0600
	keySize     = 32
)

var (
	keyringSet = keyring.Set
	keyringGet = keyring.Get
	randRead   = rand.Read
)

// KeySource supplies the session sealing key. The OS keyring is tried
// first; when it is unavailable the key lives hex-encoded in
// <FallbackDir>/session.key.
type KeySource struct {
	Service     string
	User        string
	FallbackDir string
	fs          afero.Fs
}

func NewKeySource(fs afero.Fs, fallbackDir string) *KeySource {
	return &KeySource{
		Service:     "flashbuy",
		User:        "session",
		FallbackDir: fallbackDir,
		fs:          fs,
	}
}

// Key returns the stored key, creating one on first use.
func (k *KeySource) Key() ([]byte, error) {
	stored, err := keyringGet(k.Service, k.User)
	switch {
	case err == nil:
		return decodeKey(stored)
	case errors.Is(err, keyring.ErrNotFound):
		key, err := newKey()
		if err != nil {
			return nil, err
		}
		err = keyringSet(k.Service, k.User, hex.EncodeToString(key))
		if err == nil {
			return key, nil
		}
		log.Warn().Err(err).Msg("keyring write failed, using key file")
	default:
		log.Warn().Err(err).Msg("keyring unavailable, using key file")
	}
	return k.fileKey()
}

func newKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := randRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key length: expected %d, got %d", keySize, len(key))
	}
	return key, nil
}

func (k *KeySource) keyPath() string {
	return filepath.Join(k.FallbackDir, keyFileName)
}

func (k *KeySource) fileKey() ([]byte, error) {
	data, err := afero.ReadFile(k.fs, k.keyPath())
	if err == nil {
		return decodeKey(string(data))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err := newKey()
	if err != nil {
		return nil, err
	}
	if err := k.fs.MkdirAll(k.FallbackDir, 0755); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	tmp, err := afero.TempFile(k.fs, k.FallbackDir, ".session.key.tmp.*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(hex.EncodeToString(key)); err != nil {
		tmp.Close()
		k.fs.Remove(tmpPath)
		return nil, fmt.Errorf("write key: %w", err)
	}
	if err := tmp.Close(); err != nil {
		k.fs.Remove(tmpPath)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := k.fs.Chmod(tmpPath, keyFileMode); err != nil {
		k.fs.Remove(tmpPath)
		return nil, fmt.Errorf("set permissions: %w", err)
	}
	if err := k.fs.Rename(tmpPath, k.keyPath()); err != nil {
		k.fs.Remove(tmpPath)
		return nil, fmt.Errorf("rename key file: %w", err)
	}
	return key, nil
}
