// Package blobstore keeps file content that is too large for a ledger
// record. Blobs are addressed by the SHA-256 of their uncompressed bytes and
// stored zstd-compressed at {base}/{hash[:2]}/{hash}.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const tempDirName = ".tmp"

// Store is a content-addressed blob store on the local filesystem.
type Store struct {
	baseDir string
	mu      sync.RWMutex

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates the store rooted at baseDir, creating the directory if needed.
func New(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(filepath.Join(baseDir, tempDirName), 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithZeroFrames(true))
	if err != nil {
		return nil, fmt.Errorf("blobstore: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: zstd decoder: %w", err)
	}
	return &Store{baseDir: baseDir, enc: enc, dec: dec}, nil
}

// Hash returns the reference of content: lowercase hex SHA-256.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func validateHash(h string) error {
	if len(h) != 2*sha256.Size {
		return fmt.Errorf("%w: %q", ErrInvalidHash, h)
	}
	if _, err := hex.DecodeString(h); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidHash, h)
	}
	return nil
}

// path returns {base}/{hash[:2]}/{hash}.
func (s *Store) path(h string) string {
	return filepath.Join(s.baseDir, h[:2], h)
}

// Put stores content and returns its hash. Storing existing content is a no-op.
func (s *Store) Put(ctx context.Context, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := Hash(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(h)
	if _, err := os.Stat(path); err == nil {
		return h, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	// Write to a temp file and rename so a blob is either complete or absent.
	tmp, err := os.CreateTemp(filepath.Join(s.baseDir, tempDirName), "blob-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(s.enc.EncodeAll(content, nil)); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return h, nil
}

// Get returns the content stored under h. The content is re-hashed and
// ErrCorrupt returned when it no longer matches.
func (s *Store) Get(ctx context.Context, h string) ([]byte, error) {
	content, err := s.read(ctx, h)
	if err != nil {
		return nil, err
	}
	if got := Hash(content); got != h {
		return nil, fmt.Errorf("%w: %s hashes to %s", ErrCorrupt, h, got)
	}
	return content, nil
}

// GetUnverified returns the stored content without checking its hash.
func (s *Store) GetUnverified(ctx context.Context, h string) ([]byte, error) {
	return s.read(ctx, h)
}

func (s *Store) read(ctx context.Context, h string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateHash(h); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.path(h))
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	content, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, h, err)
	}
	return content, nil
}

// Has reports whether a blob is stored under h.
func (s *Store) Has(ctx context.Context, h string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateHash(h); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := os.Stat(s.path(h)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}

// Delete removes the blob stored under h.
func (s *Store) Delete(ctx context.Context, h string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateHash(h); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(h)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, h)
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Close releases the zstd encoder and decoder.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}
