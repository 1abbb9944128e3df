package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, owner, parent, name string, created int64) *Record {
	return &Record{
		ObjectID:      id,
		OwnerID:       owner,
		ParentID:      parent,
		Name:          name,
		CreatedAt:     created,
		TransactionID: "tx-" + id,
	}
}

// runIndexContract exercises the behavior every backend must share.
func runIndexContract(t *testing.T, newIndex func(t *testing.T) Index) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Put(ctx, rec("a", "alice", "", "Reports", 10)))

		got, err := idx.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Reports", got.Name)
		assert.Equal(t, StorageLedgerOnly, got.StorageKind)

		_, err = idx.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Put(ctx, rec("a", "alice", "", "old", 10)))
		require.NoError(t, idx.Put(ctx, rec("a", "alice", "", "new", 10)))
		got, err := idx.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "new", got.Name)

		all, err := idx.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("RawHasPointerKeysOnly", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Put(ctx, rec("a", "alice", "p", "q1.txt", 10)))
		raw, err := idx.GetRaw(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, ExtraKeys(raw))
		assert.Equal(t, json.RawMessage(`"ledger_only"`), raw["storageKind"])

		_, err = idx.GetRaw(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Put(ctx, rec("a", "alice", "p", "x", 10)))
		require.NoError(t, idx.Delete(ctx, "a"))
		_, err := idx.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, idx.Delete(ctx, "a"), ErrNotFound)

		children, err := idx.ListByParent(ctx, "p")
		require.NoError(t, err)
		assert.Empty(t, children)
	})

	t.Run("Listing", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Put(ctx, rec("c", "alice", "root1", "c.txt", 30)))
		require.NoError(t, idx.Put(ctx, rec("b", "alice", "root1", "b.txt", 20)))
		require.NoError(t, idx.Put(ctx, rec("a", "alice", "root1", "a.txt", 20)))
		require.NoError(t, idx.Put(ctx, rec("root1", "alice", "", "Reports", 5)))
		require.NoError(t, idx.Put(ctx, rec("z", "bob", "", "Other", 1)))

		children, err := idx.ListByParent(ctx, "root1")
		require.NoError(t, err)
		require.Len(t, children, 3)
		assert.Equal(t, []string{"a", "b", "c"}, ids(children), "createdAt then objectId")

		owned, err := idx.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"root1", "a", "b", "c"}, ids(owned))

		roots, err := idx.ListByParent(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "root1"}, ids(roots))

		none, err := idx.ListByOwner(ctx, "carol")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("Invalid", func(t *testing.T) {
		idx := newIndex(t)
		assert.ErrorIs(t, idx.Put(ctx, &Record{OwnerID: "o", Name: "n", TransactionID: "t"}), ErrInvalidRecord)
		assert.ErrorIs(t, idx.Put(ctx, &Record{ObjectID: "x", Name: "n", TransactionID: "t"}), ErrInvalidRecord)
		bad := rec("x", "o", "", "n", 1)
		bad.StorageKind = "inline"
		assert.ErrorIs(t, idx.Put(ctx, bad), ErrInvalidRecord)
	})
}

func ids(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ObjectID
	}
	return out
}

func TestMemoryIndex(t *testing.T) {
	runIndexContract(t, func(t *testing.T) Index { return NewMemoryIndex() })
}

func TestStormIndex(t *testing.T) {
	runIndexContract(t, func(t *testing.T) Index {
		idx, err := OpenStormIndex(filepath.Join(t.TempDir(), "index", "index.db"))
		require.NoError(t, err)
		t.Cleanup(func() { idx.Close() })
		return idx
	})
}

func TestPostgresIndex(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("LEDGERFS_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set LEDGERFS_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	n := 0
	runIndexContract(t, func(t *testing.T) Index {
		n++
		idx, err := NewPostgresIndex(dsn)
		require.NoError(t, err)
		idx.tableName = postgresTableName + "_test_" + string(rune('a'+n))
		t.Cleanup(func() {
			if idx.db != nil {
				_, _ = idx.db.Exec("DROP TABLE IF EXISTS " + postgresQuoteIdentifier(idx.tableName))
			}
			idx.Close()
		})
		return idx
	})
}

func TestNewPostgresIndexRequiresDSN(t *testing.T) {
	_, err := NewPostgresIndex("  ")
	assert.ErrorIs(t, err, ErrInvalidDSN)
}

func TestMemoryIndexPutRawAndFailures(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.PutRaw("a", map[string]interface{}{
		"objectId": "a", "ownerId": "alice", "name": "q1.txt", "contentHash": "abc", "metadata": map[string]string{"k": "v"},
	}))
	raw, err := idx.GetRaw(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"contentHash", "metadata"}, ExtraKeys(raw))

	idx.FailPut = assert.AnError
	assert.ErrorIs(t, idx.Put(ctx, rec("b", "alice", "", "x", 1)), assert.AnError)
	idx.FailDelete = assert.AnError
	assert.ErrorIs(t, idx.Delete(ctx, "a"), assert.AnError)
}
