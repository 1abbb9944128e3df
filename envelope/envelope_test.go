package envelope

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T, maxSize int) *Codec {
	t.Helper()
	c, err := NewCodec(maxSize, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return c
}

func fileMeta() Metadata {
	return Metadata{
		Kind:            KindFile,
		Name:            "q1.txt",
		OwnerID:         "user-1",
		ParentFolderID:  strings.Repeat("ab", 32),
		ContentSize:     5,
		ContentEncoding: "utf-8",
		Version:         "1.0",
		CreatedAt:       fixedNow.Unix(),
	}
}

func folderMeta() Metadata {
	return Metadata{
		Kind:      KindFolder,
		Name:      "Reports",
		OwnerID:   "user-1",
		Path:      "/Reports",
		CreatedAt: fixedNow.Unix(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	data, err := c.Encode(fileMeta(), []byte("hello"))
	require.NoError(t, err)

	env, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Version, env.V)
	assert.Equal(t, fileMeta(), env.Metadata)
	assert.Equal(t, []byte("hello"), env.Content)
	assert.Equal(t, HashContent([]byte("hello")), env.ContentHash)
	assert.Equal(t, fixedNow.Unix(), env.Timestamp)
	assert.False(t, env.IsExternal())
}

func TestEncodeFolderHasNoContent(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	data, err := c.Encode(folderMeta(), nil)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"content"`)
	assert.NotContains(t, string(data), `"contentHash"`)

	env, err := c.Decode(data)
	require.NoError(t, err)
	assert.False(t, env.HasContent())
	assert.Empty(t, env.ContentHash)
}

func TestEmptyContentIsPresent(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	meta := fileMeta()
	meta.ContentSize = 0
	data, err := c.Encode(meta, []byte{})
	require.NoError(t, err)

	env, err := c.Decode(data)
	require.NoError(t, err)
	require.True(t, env.HasContent())
	assert.Empty(t, env.Content)
	assert.Equal(t, HashContent(nil), env.ContentHash)
}

func TestExternalContent(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)
	hash := HashContent([]byte("big"))

	data, err := c.EncodeExternal(fileMeta(), hash, hash)
	require.NoError(t, err)

	env, err := c.Decode(data)
	require.NoError(t, err)
	assert.True(t, env.IsExternal())
	assert.Equal(t, hash, env.ContentRef)
	assert.Equal(t, hash, env.ContentHash)
}

func TestEncodeEnvelopeRefusesHashMismatch(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	_, err := c.EncodeEnvelope(&Envelope{
		Metadata:    fileMeta(),
		Content:     []byte("hello"),
		ContentHash: HashContent([]byte("world")),
	})
	assert.ErrorIs(t, err, ErrEnvelopeHashMismatch)
}

func TestEncodeEnvelopeRefusesRefWithoutHash(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	_, err := c.EncodeEnvelope(&Envelope{Metadata: fileMeta(), ContentRef: "abc"})
	assert.ErrorIs(t, err, ErrEnvelopeCorrupt)
}

func TestEncodeRejectsInvalidMetadata(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	meta := fileMeta()
	meta.ParentFolderID = ""
	_, err := c.Encode(meta, []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	meta = folderMeta()
	meta.Kind = "symlink"
	_, err = c.Encode(meta, nil)
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestDecodeDetectsHashMutation(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	data, err := c.Encode(fileMeta(), []byte("hello"))
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["contentHash"] = HashContent([]byte("tampered"))
	mutated, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = c.Decode(mutated)
	assert.ErrorIs(t, err, ErrEnvelopeHashMismatch)

	env, err := c.DecodeUnverified(mutated)
	require.NoError(t, err)
	assert.Equal(t, HashContent([]byte("tampered")), env.ContentHash)
	assert.Equal(t, []byte("hello"), env.Content)
}

func TestSizeBoundary(t *testing.T) {
	probe := newTestCodec(t, 1<<20)
	data, err := probe.Encode(fileMeta(), []byte("hello"))
	require.NoError(t, err)

	exact := newTestCodec(t, len(data))
	_, err = exact.Encode(fileMeta(), []byte("hello"))
	assert.NoError(t, err, "envelope of exactly the limit must encode")

	under := newTestCodec(t, len(data)-1)
	_, err = under.Encode(fileMeta(), []byte("hello"))
	assert.ErrorIs(t, err, ErrEnvelopeTooLarge)
}

func TestFits(t *testing.T) {
	c := newTestCodec(t, 512)

	ok, err := c.Fits(fileMeta(), 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Fits(fileMeta(), 1000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownKeysSurviveReencode(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	record := `{"v":1,"metadata":{"kind":"folder","name":"Reports","ownerId":"user-1","createdAt":1,"color":"blue"},"timestamp":1,"signedBy":"ops"}`
	env, err := c.Decode([]byte(record))
	require.NoError(t, err)
	assert.JSONEq(t, `"blue"`, string(env.Metadata.Extra["color"]))
	assert.JSONEq(t, `"ops"`, string(env.Extra["signedBy"]))

	out, err := c.EncodeEnvelope(env)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"color":"blue"`)
	assert.Contains(t, string(out), `"signedBy":"ops"`)
}

func TestDecodeCorrupt(t *testing.T) {
	c := newTestCodec(t, DefaultMaxSize)

	tests := []struct {
		name   string
		record string
	}{
		{"not json", `{{{`},
		{"wrong version", `{"v":2,"metadata":{"kind":"folder","name":"a","ownerId":"u","createdAt":1},"timestamp":1}`},
		{"missing metadata", `{"v":1,"timestamp":1}`},
		{"schema violation", `{"v":1,"metadata":{"kind":"file","name":"a","ownerId":"u","createdAt":1},"timestamp":1}`},
		{"bad base64", `{"v":1,"metadata":{"kind":"folder","name":"a","ownerId":"u","createdAt":1},"content":"!!","contentHash":"00","timestamp":1}`},
		{"content without hash", `{"v":1,"metadata":{"kind":"folder","name":"a","ownerId":"u","createdAt":1},"content":"aGk=","timestamp":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tt.record))
			assert.ErrorIs(t, err, ErrEnvelopeCorrupt)
		})
	}
}

func TestNewCodecDefaultSize(t *testing.T) {
	c, err := NewCodec(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSize, c.MaxSize())
}
