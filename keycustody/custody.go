// Package keycustody resolves the operator signing key for one operation at a time.
//
// Callers never hold the key beyond the operation that needs it: they obtain
// it through WithOperatorKey, which releases it when the callback returns.
package keycustody

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// Custody resolves key references into operator keys.
type Custody interface {
	Resolve(ctx context.Context, ref string) (*OperatorKey, error)
}

// OperatorKey is a resolved signing key scoped to one operation.
type OperatorKey struct {
	ref string
	pub *ec.PublicKey

	mu     sync.Mutex
	secret []byte
	priv   *ec.PrivateKey
}

func newOperatorKey(ref string, secret []byte) (*OperatorKey, error) {
	if len(secret) != PrivateKeyLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(secret))
	}
	priv, pub := ec.PrivateKeyFromBytes(secret)
	if priv == nil || pub == nil {
		return nil, ErrInvalidKey
	}
	return &OperatorKey{ref: ref, pub: pub, secret: secret, priv: priv}, nil
}

// Ref returns the custody reference the key was resolved from.
func (k *OperatorKey) Ref() string { return k.ref }

// PublicKey returns the public half. It stays valid after Release.
func (k *OperatorKey) PublicKey() *ec.PublicKey { return k.pub }

// PrivateKey returns the signing key, or ErrKeyReleased after Release.
func (k *OperatorKey) PrivateKey() (*ec.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.priv == nil {
		return nil, ErrKeyReleased
	}
	return k.priv, nil
}

// Release zeroes the secret and drops the signing key. Safe to call twice.
func (k *OperatorKey) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.secret {
		k.secret[i] = 0
	}
	k.secret = nil
	k.priv = nil
}

// WithOperatorKey resolves ref, runs fn with the key and releases it when fn returns.
func WithOperatorKey(ctx context.Context, c Custody, ref string, fn func(*OperatorKey) error) error {
	key, err := c.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	defer key.Release()
	return fn(key)
}

// validateRef rejects references that could escape a key directory.
func validateRef(ref string) error {
	if ref == "" || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) || strings.ContainsRune(ref, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return nil
}

// StaticCustody serves keys held in memory. Each Resolve hands out a fresh
// copy, so releasing one operation's key does not affect the next.
type StaticCustody struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

var _ Custody = (*StaticCustody)(nil)

// NewStaticCustody returns an empty StaticCustody.
func NewStaticCustody() *StaticCustody {
	return &StaticCustody{keys: make(map[string][]byte)}
}

// Add stores priv under ref.
func (s *StaticCustody) Add(ref string, priv *ec.PrivateKey) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if priv == nil {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[ref] = priv.Serialize()
	return nil
}

// Resolve returns a copy of the key stored under ref.
func (s *StaticCustody) Resolve(ctx context.Context, ref string) (*OperatorKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	secret, ok := s.keys[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, ref)
	}
	return newOperatorKey(ref, append([]byte(nil), secret...))
}
