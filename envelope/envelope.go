// Package envelope implements the on-ledger record format for folders and files.
//
// An envelope is a JSON object holding the object's metadata and, for small
// files, its raw content (base64) alongside the SHA-256 of that content.
// Externally stored content is referenced by hash instead. Keys unknown to
// this version are kept and re-emitted, so records written by newer software
// survive a decode/encode cycle.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Version is the envelope format version written by this package.
const Version = 1

// Kind distinguishes folder and file envelopes.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// Metadata is the descriptive part of an envelope.
type Metadata struct {
	Kind            Kind   `json:"kind"`
	Name            string `json:"name"`
	OwnerID         string `json:"ownerId"`
	ParentFolderID  string `json:"parentFolderId,omitempty"`
	Path            string `json:"path,omitempty"`
	ContentSize     int64  `json:"contentSize,omitempty"`
	ContentEncoding string `json:"contentEncoding,omitempty"`
	ContentType     string `json:"contentType,omitempty"`
	Version         string `json:"version,omitempty"`
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt,omitempty"`

	// Extra holds metadata keys not known to this version.
	Extra map[string]json.RawMessage `json:"-"`
}

type metadataFields Metadata

// MarshalJSON emits known fields merged with Extra. Known fields win.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(metadataFields(m), m.Extra)
}

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var f metadataFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := unknownKeys(data, metadataKeys)
	if err != nil {
		return err
	}
	*m = Metadata(f)
	m.Extra = extra
	return nil
}

var metadataKeys = map[string]bool{
	"kind": true, "name": true, "ownerId": true, "parentFolderId": true,
	"path": true, "contentSize": true, "contentEncoding": true,
	"contentType": true, "version": true, "createdAt": true, "updatedAt": true,
}

// Envelope is a decoded ledger record.
type Envelope struct {
	V        int
	Metadata Metadata
	// Content is nil when the envelope carries no inline content. An empty,
	// non-nil slice is present-but-empty content.
	Content     []byte
	ContentHash string
	// ContentRef is the blob key of externally stored content.
	ContentRef string
	Timestamp  int64

	// Extra holds top-level keys not known to this version.
	Extra map[string]json.RawMessage
}

// HasContent reports whether the envelope carries inline content.
func (e *Envelope) HasContent() bool { return e.Content != nil }

// IsExternal reports whether the content lives outside the record.
func (e *Envelope) IsExternal() bool { return e.Content == nil && e.ContentRef != "" }

type wireEnvelope struct {
	V           int      `json:"v"`
	Metadata    Metadata `json:"metadata"`
	Content     *string  `json:"content,omitempty"`
	ContentHash string   `json:"contentHash,omitempty"`
	ContentRef  string   `json:"contentRef,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

var envelopeKeys = map[string]bool{
	"v": true, "metadata": true, "content": true, "contentHash": true,
	"contentRef": true, "timestamp": true,
}

// HashContent returns the lowercase hex SHA-256 of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// marshalWithExtra encodes v as a JSON object and adds extra keys that v does
// not already define. encoding/json sorts map keys, so output is stable.
func marshalWithExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	known, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := merged[k]; ok {
			continue
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// unknownKeys returns the entries of the JSON object data not listed in known.
func unknownKeys(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, raw := range all {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = raw
	}
	return extra, nil
}

func (e *Envelope) String() string {
	return fmt.Sprintf("envelope{v=%d kind=%s name=%q hash=%s}", e.V, e.Metadata.Kind, e.Metadata.Name, e.ContentHash)
}
