package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultMaxSize is the default record size limit in bytes.
const DefaultMaxSize = 1024

// Codec serializes envelopes and enforces the record size limit.
// A Codec is safe for concurrent use.
type Codec struct {
	maxSize int
	now     func() time.Time
	schema  *jsonschema.Schema
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock sets the clock used for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec creates a Codec with the given record size limit. A non-positive
// maxSize selects DefaultMaxSize.
func NewCodec(maxSize int, opts ...Option) (*Codec, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	sch, err := compileMetadataSchema()
	if err != nil {
		return nil, err
	}
	c := &Codec{maxSize: maxSize, now: time.Now, schema: sch}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MaxSize returns the record size limit in bytes.
func (c *Codec) MaxSize() int { return c.maxSize }

// Now returns the codec clock's current time.
func (c *Codec) Now() time.Time { return c.now() }

// Encode builds and serializes an envelope for meta and content. A nil content
// slice means no inline content; an empty one is hashed like any other.
func (c *Codec) Encode(meta Metadata, content []byte) ([]byte, error) {
	env := &Envelope{
		V:         Version,
		Metadata:  meta,
		Content:   content,
		Timestamp: c.now().Unix(),
	}
	if content != nil {
		env.ContentHash = HashContent(content)
	}
	return c.EncodeEnvelope(env)
}

// EncodeExternal serializes an envelope whose content is stored elsewhere
// under ref and hashes to contentHash.
func (c *Codec) EncodeExternal(meta Metadata, ref, contentHash string) ([]byte, error) {
	return c.EncodeEnvelope(&Envelope{
		V:           Version,
		Metadata:    meta,
		ContentRef:  ref,
		ContentHash: contentHash,
		Timestamp:   c.now().Unix(),
	})
}

// EncodeEnvelope serializes a caller-built envelope. It refuses envelopes
// whose inline content does not hash to ContentHash.
func (c *Codec) EncodeEnvelope(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrEnvelopeCorrupt)
	}
	if env.Content != nil {
		if env.ContentRef != "" {
			return nil, fmt.Errorf("%w: both inline content and content ref", ErrEnvelopeCorrupt)
		}
		if got := HashContent(env.Content); got != env.ContentHash {
			return nil, fmt.Errorf("%w: stored %q, content hashes to %q", ErrEnvelopeHashMismatch, env.ContentHash, got)
		}
	} else if env.ContentRef != "" && env.ContentHash == "" {
		return nil, fmt.Errorf("%w: content ref without content hash", ErrEnvelopeCorrupt)
	}

	metaJSON, err := json.Marshal(env.Metadata)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal metadata: %w", err)
	}
	if err := validateMetadataJSON(c.schema, metaJSON); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	v := env.V
	if v == 0 {
		v = Version
	}
	w := wireEnvelope{
		V:           v,
		Metadata:    env.Metadata,
		ContentHash: env.ContentHash,
		ContentRef:  env.ContentRef,
		Timestamp:   env.Timestamp,
	}
	if env.Content != nil {
		s := base64.StdEncoding.EncodeToString(env.Content)
		w.Content = &s
	}

	data, err := marshalWithExtra(w, env.Extra)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal: %w", err)
	}
	if len(data) > c.maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrEnvelopeTooLarge, len(data), c.maxSize)
	}
	return data, nil
}

// Decode parses a record and checks the content hash invariant.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	env, err := c.DecodeUnverified(data)
	if err != nil {
		return nil, err
	}
	if env.Content != nil {
		if got := HashContent(env.Content); got != env.ContentHash {
			return env, fmt.Errorf("%w: stored %q, content hashes to %q", ErrEnvelopeHashMismatch, env.ContentHash, got)
		}
	}
	return env, nil
}

// DecodeUnverified parses a record without checking the content hash.
// Integrity checks use it to report both hashes of a damaged record.
func (c *Codec) DecodeUnverified(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}
	if w.V != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrEnvelopeCorrupt, w.V)
	}

	var raw struct {
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}
	if len(raw.Metadata) == 0 {
		return nil, fmt.Errorf("%w: missing metadata", ErrEnvelopeCorrupt)
	}
	if err := validateMetadataJSON(c.schema, raw.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrEnvelopeCorrupt, err)
	}

	extra, err := unknownKeys(data, envelopeKeys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}

	env := &Envelope{
		V:           w.V,
		Metadata:    w.Metadata,
		ContentHash: w.ContentHash,
		ContentRef:  w.ContentRef,
		Timestamp:   w.Timestamp,
		Extra:       extra,
	}
	if w.Content != nil {
		content, err := base64.StdEncoding.DecodeString(*w.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: content: %v", ErrEnvelopeCorrupt, err)
		}
		if content == nil {
			content = []byte{}
		}
		env.Content = content
		if env.ContentHash == "" {
			return nil, fmt.Errorf("%w: content without content hash", ErrEnvelopeCorrupt)
		}
	}
	return env, nil
}

// Overhead returns the serialized size of meta with an empty inline content
// field. Callers use it to decide between inline and external storage.
func (c *Codec) Overhead(meta Metadata) (int, error) {
	data, err := json.Marshal(wireEnvelope{
		V:           Version,
		Metadata:    meta,
		Content:     new(string),
		ContentHash: HashContent(nil),
		Timestamp:   c.now().Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("envelope: marshal: %w", err)
	}
	return len(data), nil
}

// Fits reports whether contentLen bytes of content can be stored inline with meta.
func (c *Codec) Fits(meta Metadata, contentLen int) (bool, error) {
	overhead, err := c.Overhead(meta)
	if err != nil {
		return false, err
	}
	return overhead+base64.StdEncoding.EncodedLen(contentLen) <= c.maxSize, nil
}
