package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	bucketTips      = []byte("tips")
	bucketOutpoints = []byte("outpoints")
)

// Tip is the current token output of an object.
type Tip struct {
	ObjectID  string // display hex mint txid
	TxID      []byte // transaction holding the token output, internal byte order
	Vout      uint32
	Amount    uint64
	KeyRef    string
	Deleted   bool
	UpdatedAt int64
}

// TipStore keeps token tips in bbolt. Records are never stored here; they
// are always re-read from the ledger.
type TipStore struct {
	db *bbolt.DB
}

// OpenTipStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenTipStore(dbPath string) (*TipStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketTips, bucketOutpoints} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("tipstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create buckets: %w", err)
	}
	return &TipStore{db: db}, nil
}

// Close closes the underlying database.
func (s *TipStore) Close() error { return s.db.Close() }

// outpointKey encodes txid || vout (big-endian) as a lookup key.
func outpointKey(txID []byte, vout uint32) []byte {
	k := make([]byte, len(txID)+4)
	copy(k, txID)
	binary.BigEndian.PutUint32(k[len(txID):], vout)
	return k
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Put stores tip, replacing the previous tip of the same object and its
// outpoint entry. Deleted tips keep no outpoint.
func (s *TipStore) Put(tip *Tip) error {
	if tip == nil {
		return fmt.Errorf("%w: tip", ErrNilParam)
	}
	if tip.ObjectID == "" {
		return fmt.Errorf("%w: tip object id", ErrNilParam)
	}
	data, err := encodeGob(tip)
	if err != nil {
		return fmt.Errorf("tipstore: encode tip: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		tb := tx.Bucket(bucketTips)
		ob := tx.Bucket(bucketOutpoints)

		if prev := tb.Get([]byte(tip.ObjectID)); prev != nil {
			var old Tip
			if err := decodeGob(prev, &old); err != nil {
				return fmt.Errorf("tipstore: decode tip: %w", err)
			}
			if len(old.TxID) > 0 {
				if err := ob.Delete(outpointKey(old.TxID, old.Vout)); err != nil {
					return fmt.Errorf("tipstore: delete outpoint: %w", err)
				}
			}
		}
		if err := tb.Put([]byte(tip.ObjectID), data); err != nil {
			return fmt.Errorf("tipstore: put tip: %w", err)
		}
		if !tip.Deleted && len(tip.TxID) > 0 {
			if err := ob.Put(outpointKey(tip.TxID, tip.Vout), []byte(tip.ObjectID)); err != nil {
				return fmt.Errorf("tipstore: put outpoint: %w", err)
			}
		}
		return nil
	})
}

// Get returns the tip of objectID, or ErrTipNotFound.
func (s *TipStore) Get(objectID string) (*Tip, error) {
	var tip Tip
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTips).Get([]byte(objectID))
		if data == nil {
			return ErrTipNotFound
		}
		if err := decodeGob(data, &tip); err != nil {
			return fmt.Errorf("tipstore: decode tip: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tip, nil
}

// IsTokenOutpoint reports whether txid:vout is the live token output of
// some object.
func (s *TipStore) IsTokenOutpoint(txID []byte, vout uint32) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketOutpoints).Get(outpointKey(txID, vout)) != nil
		return nil
	})
	return found, err
}

// Count returns the number of tips, deleted ones included.
func (s *TipStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketTips).Stats().KeyN
		return nil
	})
	return n, err
}

func isTipNotFound(err error) bool { return errors.Is(err, ErrTipNotFound) }
