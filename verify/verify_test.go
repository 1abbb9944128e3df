package verify

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/ledgerfs-go/blobstore"
	"github.com/bitfsorg/ledgerfs-go/envelope"
	"github.com/bitfsorg/ledgerfs-go/index"
	"github.com/bitfsorg/ledgerfs-go/ledger"
	"github.com/bitfsorg/ledgerfs-go/metrics"
	"github.com/bitfsorg/ledgerfs-go/objectstore"
)

type fixture struct {
	ledger   *ledger.Memory
	index    *index.MemoryIndex
	blobs    *blobstore.Store
	codec    *envelope.Codec
	mgr      *objectstore.Manager
	verifier *Verifier
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:  ledger.NewMemory(),
		index:   index.NewMemoryIndex(),
		metrics: metrics.New(),
	}
	var err error
	f.codec, err = envelope.NewCodec(1024, envelope.WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	require.NoError(t, err)
	f.blobs, err = blobstore.New(t.TempDir())
	require.NoError(t, err)

	f.mgr, err = objectstore.New(objectstore.Config{
		Ledger: f.ledger, Index: f.index, Codec: f.codec, Blobs: f.blobs, KeyRef: "operator",
	})
	require.NoError(t, err)
	f.verifier, err = New(Config{
		Ledger: f.ledger, Index: f.index, Codec: f.codec, Blobs: f.blobs,
		Concurrency: 2, Metrics: f.metrics,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) file(t *testing.T, content []byte) (*objectstore.Folder, *objectstore.File) {
	t.Helper()
	ctx := context.Background()
	folder, err := f.mgr.CreateFolder(ctx, "Reports", "u-1", "")
	require.NoError(t, err)
	file, err := f.mgr.CreateFile(ctx, "q1.txt", content, "u-1", folder.ObjectID, objectstore.FileOptions{})
	require.NoError(t, err)
	return folder, file
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilParam)
}

func TestVerifyValidThenTampered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	folder, file := f.file(t, []byte("quarterly numbers"))

	res, err := f.verifier.Verify(ctx, file.ObjectID)
	require.NoError(t, err)
	assert.True(t, res.IntegrityValid, res.Problems)
	assert.Equal(t, StateLive, res.LedgerState)
	assert.True(t, res.IndexRecordFound)
	assert.False(t, res.IndexHasMetadata)
	assert.Equal(t, file.ContentHash, res.LedgerHash)
	assert.Equal(t, res.LedgerHash, res.RecomputedHash)

	res, err = f.verifier.Verify(ctx, folder.ObjectID)
	require.NoError(t, err)
	assert.True(t, res.IntegrityValid, res.Problems)

	record, err := f.ledger.QueryRecord(ctx, file.ObjectID)
	require.NoError(t, err)
	forged := bytes.Replace(record, []byte(file.ContentHash), []byte(envelope.HashContent([]byte("other"))), 1)
	require.NoError(t, f.ledger.Tamper(file.ObjectID, forged))

	res, err = f.verifier.Verify(ctx, file.ObjectID)
	require.NoError(t, err)
	assert.False(t, res.IntegrityValid)
	assert.Equal(t, file.ContentHash, res.RecomputedHash)
	assert.NotEqual(t, res.LedgerHash, res.RecomputedHash)
	assert.NotEmpty(t, res.Problems)

	assert.Equal(t, 2.0, verifications(t, f.metrics, "valid"))
	assert.Equal(t, 1.0, verifications(t, f.metrics, "invalid"))
}

func TestVerifyIndexPurity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, file := f.file(t, []byte("x"))

	require.NoError(t, f.index.PutRaw(file.ObjectID, map[string]interface{}{
		"objectId":      file.ObjectID,
		"ownerId":       "u-1",
		"name":          "q1.txt",
		"createdAt":     file.CreatedAt,
		"transactionId": file.TransactionID,
		"storageKind":   index.StorageLedgerOnly,
		"contentHash":   file.ContentHash,
		"version":       "1.0",
	}))

	res, err := f.verifier.Verify(ctx, file.ObjectID)
	require.NoError(t, err)
	assert.False(t, res.IntegrityValid)
	assert.True(t, res.IndexHasMetadata)
	assert.Equal(t, []string{"contentHash", "version"}, res.ExtraIndexKeys)
	assert.Equal(t, res.LedgerHash, res.RecomputedHash, "ledger itself is consistent")
}

func TestVerifyExternalContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	big := bytes.Repeat([]byte("q"), 4096)
	_, file := f.file(t, big)
	require.Equal(t, objectstore.StorageExternal, file.Storage)

	res, err := f.verifier.Verify(ctx, file.ObjectID)
	require.NoError(t, err)
	assert.True(t, res.IntegrityValid, res.Problems)

	require.NoError(t, f.blobs.Delete(ctx, file.ContentHash))
	res, err = f.verifier.Verify(ctx, file.ObjectID)
	require.NoError(t, err)
	assert.False(t, res.IntegrityValid)
	assert.Empty(t, res.RecomputedHash)
}

func TestVerifyMissingObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.verifier.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidObjectID)

	res, err := f.verifier.Verify(ctx, "ab")
	require.NoError(t, err)
	assert.False(t, res.IntegrityValid)
	assert.Equal(t, StateUnknown, res.LedgerState)
	assert.False(t, res.IndexRecordFound)
	assert.False(t, res.Dangling())
}

func TestVerifyUnreadableRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, file := f.file(t, []byte("x"))
	require.NoError(t, f.ledger.Tamper(file.ObjectID, []byte("not json")))

	res, err := f.verifier.Verify(ctx, file.ObjectID)
	require.NoError(t, err)
	assert.False(t, res.IntegrityValid)
	assert.Equal(t, StateUnreadable, res.LedgerState)
}

func TestVerifyLedgerErrorPropagates(t *testing.T) {
	f := newFixture(t)
	_, file := f.file(t, []byte("x"))
	f.ledger.Inject(ledger.OpQuery, fmt.Errorf("node down"))

	_, err := f.verifier.Verify(context.Background(), file.ObjectID)
	assert.Error(t, err)
}

func TestSweepRepairsDanglingPointers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	folder, file := f.file(t, []byte("x"))

	// Burn the file behind the index's back, leaving its pointer dangling.
	_, err := f.ledger.SubmitDelete(ctx, file.ObjectID)
	require.NoError(t, err)
	require.NoError(t, f.index.Put(ctx, &index.Record{
		ObjectID: "ff", OwnerID: "u-1", ParentID: folder.ObjectID, Name: "ghost",
		CreatedAt: 1, TransactionID: "ff",
	}))

	report, err := f.verifier.Sweep(ctx, "u-1", false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 1, report.Valid)
	assert.ElementsMatch(t, []string{file.ObjectID, "ff"}, report.Dangling)
	assert.Empty(t, report.Repaired)
	assert.Empty(t, report.Invalid)

	report, err = f.verifier.Sweep(ctx, "u-1", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{file.ObjectID, "ff"}, report.Repaired)

	records, err := f.index.ListByOwner(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, folder.ObjectID, records[0].ObjectID)
}

func verifications(t *testing.T, m *metrics.Metrics, result string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "ledgerfs_verify_results_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
