package envelope

import "errors"

var (
	// ErrEnvelopeTooLarge indicates the serialized envelope exceeds the record size limit.
	ErrEnvelopeTooLarge = errors.New("envelope: serialized size exceeds record limit")

	// ErrEnvelopeCorrupt indicates the record could not be parsed as an envelope.
	ErrEnvelopeCorrupt = errors.New("envelope: corrupt record")

	// ErrEnvelopeHashMismatch indicates content does not hash to the stored content hash.
	ErrEnvelopeHashMismatch = errors.New("envelope: content hash mismatch")

	// ErrInvalidMetadata indicates metadata failed schema validation on encode.
	ErrInvalidMetadata = errors.New("envelope: invalid metadata")
)
