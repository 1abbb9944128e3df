package keycustody

import "errors"

var (
	// ErrKeyNotFound indicates no key is held under the reference.
	ErrKeyNotFound = errors.New("keycustody: key not found")

	// ErrInvalidRef indicates the key reference is empty or not a plain name.
	ErrInvalidRef = errors.New("keycustody: invalid key reference")

	// ErrDecryptionFailed indicates a wrong passphrase or corrupted key file.
	ErrDecryptionFailed = errors.New("keycustody: key decryption failed (wrong passphrase or corrupted data)")

	// ErrChecksumMismatch indicates the key checksum failed after decryption.
	ErrChecksumMismatch = errors.New("keycustody: key checksum mismatch")

	// ErrInvalidKey indicates the secret is not a valid 32-byte private key.
	ErrInvalidKey = errors.New("keycustody: invalid private key")

	// ErrKeyReleased indicates the key was used after Release.
	ErrKeyReleased = errors.New("keycustody: key already released")

	// ErrKeyExists indicates a key file already exists under the reference.
	ErrKeyExists = errors.New("keycustody: key already exists")
)
