package keycustody

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters for key file encryption.
	Argon2Time        = 3
	Argon2Memory      = 64 * 1024 // 64 MB
	Argon2Parallelism = 4
	Argon2KeyLen      = 32

	// Key file format sizes.
	SaltLen       = 16
	NonceLen      = 12
	ChecksumLen   = 4
	PrivateKeyLen = 32

	keyFileExt = ".key"
)

// SealKey encrypts a private key secret with Argon2id + AES-256-GCM.
//
// Output format: salt(16B) || nonce(12B) || AES-GCM(argon2id(passphrase,salt), nonce, secret||checksum)
//
// The checksum is SHA256(secret)[:4] for verifying correct decryption.
func SealKey(secret []byte, passphrase string) ([]byte, error) {
	if len(secret) != PrivateKeyLen {
		return nil, ErrInvalidKey
	}

	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keycustody: failed to generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(secret)
	plaintext := make([]byte, 0, len(secret)+ChecksumLen)
	plaintext = append(plaintext, secret...)
	plaintext = append(plaintext, sum[:ChecksumLen]...)
	defer zero(plaintext)

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keycustody: failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, SaltLen+NonceLen+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// OpenKey decrypts a key sealed by SealKey.
func OpenKey(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < SaltLen+NonceLen+ChecksumLen {
		return nil, ErrDecryptionFailed
	}

	salt := sealed[:SaltLen]
	nonce := sealed[SaltLen : SaltLen+NonceLen]
	ciphertext := sealed[SaltLen+NonceLen:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil || len(plaintext) < ChecksumLen {
		return nil, ErrDecryptionFailed
	}

	secret := plaintext[:len(plaintext)-ChecksumLen]
	stored := plaintext[len(plaintext)-ChecksumLen:]
	sum := sha256.Sum256(secret)
	if subtle.ConstantTimeCompare(stored, sum[:ChecksumLen]) != 1 {
		zero(plaintext)
		return nil, ErrChecksumMismatch
	}
	return secret, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	derived := argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)
	defer zero(derived)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("keycustody: AES cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keycustody: GCM creation failed: %w", err)
	}
	return gcm, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// FileCustody resolves keys from sealed files named {dir}/{ref}.key.
// The key is decrypted on every Resolve and never cached.
type FileCustody struct {
	dir        string
	passphrase string
}

var _ Custody = (*FileCustody)(nil)

// NewFileCustody returns a FileCustody reading from dir.
func NewFileCustody(dir, passphrase string) *FileCustody {
	return &FileCustody{dir: dir, passphrase: passphrase}
}

func (f *FileCustody) path(ref string) string {
	return filepath.Join(f.dir, ref+keyFileExt)
}

// Resolve decrypts the key stored under ref.
func (f *FileCustody) Resolve(ctx context.Context, ref string) (*OperatorKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	sealed, err := os.ReadFile(f.path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, ref)
		}
		return nil, fmt.Errorf("keycustody: read %s: %w", ref, err)
	}
	secret, err := OpenKey(sealed, f.passphrase)
	if err != nil {
		return nil, fmt.Errorf("keycustody: %s: %w", ref, err)
	}
	return newOperatorKey(ref, secret)
}

// Generate creates a new random key, seals it under ref and returns its
// public key. An existing key file is never overwritten.
func (f *FileCustody) Generate(ref string) (*ec.PublicKey, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return nil, fmt.Errorf("keycustody: create key dir: %w", err)
	}

	priv, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("keycustody: generate key: %w", err)
	}
	secret := priv.Serialize()
	defer zero(secret)

	sealed, err := SealKey(secret, f.passphrase)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(f.path(ref), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %q", ErrKeyExists, ref)
		}
		return nil, fmt.Errorf("keycustody: create key file: %w", err)
	}
	if _, err := file.Write(sealed); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("keycustody: write key file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("keycustody: close key file: %w", err)
	}
	return priv.PubKey(), nil
}
