// Package objectstore is the object lifecycle manager. It turns folder and
// file operations into envelope records on the ledger and keeps the
// secondary index of pointers in step.
//
// The ledger is authoritative. Reads of objects always go to the ledger;
// listings come from the index only. Index writes after a successful ledger
// write are best effort: failures are logged and reported as IndexPending,
// and the verifier reconciles them.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitfsorg/ledgerfs-go/blobstore"
	"github.com/bitfsorg/ledgerfs-go/envelope"
	"github.com/bitfsorg/ledgerfs-go/index"
	"github.com/bitfsorg/ledgerfs-go/ledger"
	"github.com/bitfsorg/ledgerfs-go/logging"
	"github.com/bitfsorg/ledgerfs-go/metrics"
)

// ContentPolicy decides what happens to content too large for a record.
type ContentPolicy string

const (
	// PolicyExternalize stores large content in the blob store and records
	// only its hash on the ledger.
	PolicyExternalize ContentPolicy = "externalize"
	// PolicyReject fails with envelope.ErrEnvelopeTooLarge.
	PolicyReject ContentPolicy = "reject"
)

// Config wires a Manager.
type Config struct {
	Ledger ledger.Ledger
	Index  index.Index
	Codec  *envelope.Codec
	// Blobs holds externalized content. Nil makes PolicyExternalize behave
	// like PolicyReject.
	Blobs  *blobstore.Store
	Policy ContentPolicy
	// KeyRef selects the custody key that mints new tokens.
	KeyRef string
	// UniqueNames rejects a create or rename when a sibling already has the
	// name. The check reads the index, so concurrent writers can still race.
	UniqueNames bool
	Authorizer  Authorizer
	Logger      log.FieldLogger
	Metrics     *metrics.Metrics
}

// Manager implements the folder and file lifecycle.
type Manager struct {
	ledger      ledger.Ledger
	index       index.Index
	codec       *envelope.Codec
	blobs       *blobstore.Store
	policy      ContentPolicy
	keyRef      string
	uniqueNames bool
	auth        Authorizer
	log         log.FieldLogger
	metrics     *metrics.Metrics
}

// New returns a Manager. Ledger, Index and Codec are required.
func New(cfg Config) (*Manager, error) {
	if cfg.Ledger == nil || cfg.Index == nil || cfg.Codec == nil {
		return nil, errors.New("objectstore: ledger, index and codec are required")
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyExternalize
	}
	if cfg.Policy != PolicyExternalize && cfg.Policy != PolicyReject {
		return nil, fmt.Errorf("objectstore: unknown content policy %q", cfg.Policy)
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = OwnerOnly{}
	}
	return &Manager{
		ledger:      cfg.Ledger,
		index:       cfg.Index,
		codec:       cfg.Codec,
		blobs:       cfg.Blobs,
		policy:      cfg.Policy,
		keyRef:      cfg.KeyRef,
		uniqueNames: cfg.UniqueNames,
		auth:        cfg.Authorizer,
		log:         logging.OrDiscard(cfg.Logger),
		metrics:     cfg.Metrics,
	}, nil
}

func (m *Manager) now() int64 { return m.codec.Now().Unix() }

// CreateFolder mints a folder. parentFolderID is optional; when set it must
// name a live folder the owner may write into.
func (m *Manager) CreateFolder(ctx context.Context, name, ownerID, parentFolderID string) (*Folder, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, ErrInvalidOwner
	}

	p := childPath("", name)
	if parentFolderID != "" {
		parent, err := m.writableFolder(ctx, parentFolderID, ownerID)
		if err != nil {
			return nil, err
		}
		p = childPath(parent.Metadata.Path, name)
	}
	if err := m.checkUnique(ctx, ownerID, parentFolderID, name, ""); err != nil {
		return nil, err
	}

	meta := envelope.Metadata{
		Kind:           envelope.KindFolder,
		Name:           name,
		OwnerID:        ownerID,
		ParentFolderID: parentFolderID,
		Path:           p,
		CreatedAt:      m.now(),
	}
	record, err := m.codec.Encode(meta, nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: encode folder: %w", err)
	}
	receipt, err := m.ledger.SubmitCreate(ctx, record, ledger.TokenParams{KeyRef: m.keyRef, Label: "folder"})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create folder: %w", err)
	}

	folder := folderFromMeta(receipt.ObjectID, meta)
	folder.TransactionID = receipt.TxID
	folder.IndexPending = !m.putPointer(ctx, "create", pointerFor(receipt.ObjectID, receipt.TxID, meta))

	m.log.WithFields(log.Fields{
		"object_id": receipt.ObjectID, "owner_id": ownerID, "txid": receipt.TxID,
	}).Info("folder created")
	return folder, nil
}

// CreateFile mints a file inside a live folder. Content that does not fit
// in a record is handled by the configured ContentPolicy.
func (m *Manager) CreateFile(ctx context.Context, name string, content []byte, ownerID, parentFolderID string, opts FileOptions) (*File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, ErrInvalidOwner
	}
	if parentFolderID == "" {
		return nil, ErrParentRequired
	}
	version := opts.Version
	if version == "" {
		version = DefaultVersion
	}
	if _, err := parseVersion(version); err != nil {
		return nil, err
	}
	encoding := opts.ContentEncoding
	if encoding == "" {
		encoding = DefaultContentEncoding
	}
	if content == nil {
		content = []byte{}
	}

	parent, err := m.writableFolder(ctx, parentFolderID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := m.checkUnique(ctx, ownerID, parentFolderID, name, ""); err != nil {
		return nil, err
	}

	meta := envelope.Metadata{
		Kind:            envelope.KindFile,
		Name:            name,
		OwnerID:         ownerID,
		ParentFolderID:  parentFolderID,
		Path:            childPath(parent.Metadata.Path, name),
		ContentSize:     int64(len(content)),
		ContentEncoding: encoding,
		ContentType:     opts.ContentType,
		Version:         version,
		CreatedAt:       m.now(),
	}
	record, storage, err := m.encodeFile(ctx, meta, content)
	if err != nil {
		return nil, err
	}
	receipt, err := m.ledger.SubmitCreate(ctx, record, ledger.TokenParams{KeyRef: m.keyRef, Label: "file"})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create file: %w", err)
	}

	file := fileFromMeta(receipt.ObjectID, meta, envelope.HashContent(content), storage)
	file.TransactionID = receipt.TxID
	file.IndexPending = !m.putPointer(ctx, "create", pointerFor(receipt.ObjectID, receipt.TxID, meta))

	m.log.WithFields(log.Fields{
		"object_id": receipt.ObjectID, "owner_id": ownerID, "txid": receipt.TxID,
		"size": len(content), "storage": storage,
	}).Info("file created")
	return file, nil
}

// UpdateFile replaces the content of a file. newVersion must be strictly
// greater than the current version.
func (m *Manager) UpdateFile(ctx context.Context, objectID, actorID string, content []byte, newVersion string) (*File, error) {
	obj, err := m.live(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if obj.Metadata.Kind != envelope.KindFile {
		return nil, fmt.Errorf("%w: %s", ErrNotFile, objectID)
	}
	if err := m.auth.Authorize(ctx, actorID, ActionWrite, obj.Metadata.OwnerID); err != nil {
		return nil, err
	}

	cmp, err := CompareVersions(newVersion, obj.Metadata.Version)
	if err != nil {
		return nil, err
	}
	if cmp <= 0 {
		return nil, fmt.Errorf("%w: %q is not greater than current %q", ErrVersionConflict, newVersion, obj.Metadata.Version)
	}
	if content == nil {
		content = []byte{}
	}

	meta := obj.Metadata
	meta.Version = newVersion
	meta.ContentSize = int64(len(content))
	meta.UpdatedAt = m.now()

	record, storage, err := m.encodeFile(ctx, meta, content)
	if err != nil {
		return nil, err
	}
	receipt, err := m.ledger.SubmitUpdate(ctx, objectID, record)
	if err != nil {
		return nil, fmt.Errorf("objectstore: update file: %w", err)
	}

	file := fileFromMeta(objectID, meta, envelope.HashContent(content), storage)
	file.TransactionID = receipt.TxID
	file.IndexPending = !m.putPointer(ctx, "update", pointerFor(objectID, receipt.TxID, meta))

	m.log.WithFields(log.Fields{
		"object_id": objectID, "txid": receipt.TxID, "version": newVersion,
	}).Info("file updated")
	return file, nil
}

// UpdateFolder renames a folder.
func (m *Manager) UpdateFolder(ctx context.Context, objectID, actorID, newName string) (*Folder, error) {
	if err := ValidateName(newName); err != nil {
		return nil, err
	}
	obj, err := m.live(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if !obj.IsFolder() {
		return nil, fmt.Errorf("%w: %s", ErrNotFolder, objectID)
	}
	if err := m.auth.Authorize(ctx, actorID, ActionWrite, obj.Metadata.OwnerID); err != nil {
		return nil, err
	}
	if err := m.checkUnique(ctx, obj.Metadata.OwnerID, obj.Metadata.ParentFolderID, newName, objectID); err != nil {
		return nil, err
	}

	meta := obj.Metadata
	meta.Name = newName
	meta.Path = renamedPath(meta.Path, newName)
	meta.UpdatedAt = m.now()

	record, err := m.codec.Encode(meta, nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: encode folder: %w", err)
	}
	receipt, err := m.ledger.SubmitUpdate(ctx, objectID, record)
	if err != nil {
		return nil, fmt.Errorf("objectstore: update folder: %w", err)
	}

	folder := folderFromMeta(objectID, meta)
	folder.TransactionID = receipt.TxID
	folder.IndexPending = !m.putPointer(ctx, "update", pointerFor(objectID, receipt.TxID, meta))

	m.log.WithFields(log.Fields{"object_id": objectID, "txid": receipt.TxID}).Info("folder renamed")
	return folder, nil
}

// DeleteObject burns an object's token and removes its index pointer.
// Folders must have no children in the index; nothing is deleted recursively.
func (m *Manager) DeleteObject(ctx context.Context, objectID, actorID string) error {
	obj, err := m.live(ctx, objectID)
	if err != nil {
		return err
	}
	if err := m.auth.Authorize(ctx, actorID, ActionDelete, obj.Metadata.OwnerID); err != nil {
		return err
	}
	if obj.IsFolder() {
		children, err := m.index.ListByParent(ctx, objectID)
		if err != nil {
			return fmt.Errorf("objectstore: list children of %s: %w", objectID, err)
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: %s has %d children", ErrFolderNotEmpty, objectID, len(children))
		}
	}

	receipt, err := m.ledger.SubmitDelete(ctx, objectID)
	if err != nil {
		return fmt.Errorf("objectstore: delete: %w", err)
	}

	if err := m.index.Delete(ctx, objectID); err != nil && !errors.Is(err, index.ErrNotFound) {
		m.indexFailed("delete", objectID, err)
	}
	m.log.WithFields(log.Fields{"object_id": objectID, "txid": receipt.TxID}).Info("object deleted")
	return nil
}

// ListChildren returns the index pointers under parentID that ownerID may
// read, ordered by creation time then object id. An empty parentID lists
// ownerID's top-level objects. The ledger is not consulted.
func (m *Manager) ListChildren(ctx context.Context, parentID, ownerID string) ([]index.Record, error) {
	if ownerID == "" {
		return nil, ErrInvalidOwner
	}
	var (
		records []index.Record
		err     error
	)
	if parentID == "" {
		records, err = m.index.ListByOwner(ctx, ownerID)
	} else {
		records, err = m.index.ListByParent(ctx, parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: list: %w", err)
	}

	out := make([]index.Record, 0, len(records))
	for _, r := range records {
		if parentID == "" && r.ParentID != "" {
			continue
		}
		if m.auth.Authorize(ctx, ownerID, ActionRead, r.OwnerID) != nil {
			continue
		}
		out = append(out, r)
	}
	index.Sort(out)
	return out, nil
}

// ReadObject reads an object from the ledger, including its content.
// Externally stored content is fetched from the blob store and checked
// against the recorded hash.
func (m *Manager) ReadObject(ctx context.Context, objectID string) (*Object, error) {
	obj, err := m.live(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if obj.Storage != StorageExternal {
		return obj, nil
	}
	if m.blobs == nil {
		return nil, fmt.Errorf("%w: %s is stored externally and no blob store is configured", ErrContentUnavailable, objectID)
	}
	content, err := m.blobs.Get(ctx, obj.ContentHash)
	if err != nil {
		if errors.Is(err, blobstore.ErrCorrupt) {
			return nil, fmt.Errorf("%w: %s: %v", envelope.ErrEnvelopeHashMismatch, objectID, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrContentUnavailable, objectID, err)
	}
	obj.Content = content
	return obj, nil
}

// ReadMetadata reads an object's metadata from the ledger without its content.
func (m *Manager) ReadMetadata(ctx context.Context, objectID string) (*Object, error) {
	obj, err := m.live(ctx, objectID)
	if err != nil {
		return nil, err
	}
	obj.Content = nil
	return obj, nil
}

// live fetches and decodes the current record of objectID.
func (m *Manager) live(ctx context.Context, objectID string) (*Object, error) {
	if objectID == "" {
		return nil, fmt.Errorf("%w: empty object id", ErrNotFound)
	}
	record, err := m.ledger.QueryRecord(ctx, objectID)
	switch {
	case errors.Is(err, ledger.ErrTokenNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
	case errors.Is(err, ledger.ErrTokenDeleted):
		return nil, fmt.Errorf("%w: %s", ErrObjectGone, objectID)
	case err != nil:
		return nil, fmt.Errorf("objectstore: query %s: %w", objectID, err)
	}
	env, err := m.codec.Decode(record)
	if err != nil {
		return nil, fmt.Errorf("objectstore: decode %s: %w", objectID, err)
	}
	return &Object{
		ObjectID:    objectID,
		Metadata:    env.Metadata,
		Content:     env.Content,
		ContentHash: env.ContentHash,
		Storage:     storageOf(env),
		Timestamp:   env.Timestamp,
	}, nil
}

// writableFolder resolves parentID to a live folder actorID may write into.
func (m *Manager) writableFolder(ctx context.Context, parentID, actorID string) (*Object, error) {
	parent, err := m.live(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("objectstore: parent folder: %w", err)
	}
	if !parent.IsFolder() {
		return nil, fmt.Errorf("%w: parent %s", ErrNotFolder, parentID)
	}
	if err := m.auth.Authorize(ctx, actorID, ActionWrite, parent.Metadata.OwnerID); err != nil {
		return nil, err
	}
	return parent, nil
}

// encodeFile encodes a file record, applying the content policy when the
// content does not fit inline.
func (m *Manager) encodeFile(ctx context.Context, meta envelope.Metadata, content []byte) ([]byte, string, error) {
	fits, err := m.codec.Fits(meta, len(content))
	if err != nil {
		return nil, "", fmt.Errorf("objectstore: encode file: %w", err)
	}
	if fits {
		record, err := m.codec.Encode(meta, content)
		if err == nil {
			return record, StorageInline, nil
		}
		if !errors.Is(err, envelope.ErrEnvelopeTooLarge) {
			return nil, "", fmt.Errorf("objectstore: encode file: %w", err)
		}
	}

	if m.policy == PolicyReject || m.blobs == nil {
		return nil, "", fmt.Errorf("objectstore: %w: %d bytes of content exceed the %d byte record limit",
			envelope.ErrEnvelopeTooLarge, len(content), m.codec.MaxSize())
	}
	ref, err := m.blobs.Put(ctx, content)
	if err != nil {
		return nil, "", fmt.Errorf("objectstore: store content: %w", err)
	}
	record, err := m.codec.EncodeExternal(meta, ref, envelope.HashContent(content))
	if err != nil {
		return nil, "", fmt.Errorf("objectstore: encode file: %w", err)
	}
	return record, StorageExternal, nil
}

// checkUnique fails with ErrNameTaken when name uniqueness is enforced and a
// sibling other than self already uses name.
func (m *Manager) checkUnique(ctx context.Context, ownerID, parentID, name, self string) error {
	if !m.uniqueNames {
		return nil
	}
	siblings, err := m.ListChildren(ctx, parentID, ownerID)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.Name == name && s.ObjectID != self {
			return fmt.Errorf("%w: %q", ErrNameTaken, name)
		}
	}
	return nil
}

// putPointer writes a pointer record and reports whether it succeeded.
func (m *Manager) putPointer(ctx context.Context, op string, rec *index.Record) bool {
	if err := m.index.Put(ctx, rec); err != nil {
		m.indexFailed(op, rec.ObjectID, err)
		return false
	}
	return true
}

func (m *Manager) indexFailed(op, objectID string, err error) {
	m.metrics.IndexWriteFailure(op)
	m.log.WithError(fmt.Errorf("%w: %v", ErrIndexWriteFailed, err)).
		WithFields(log.Fields{"object_id": objectID, "op": op}).
		Warn("index out of step with ledger")
}

func pointerFor(objectID, txID string, meta envelope.Metadata) *index.Record {
	return &index.Record{
		ObjectID:      objectID,
		OwnerID:       meta.OwnerID,
		ParentID:      meta.ParentFolderID,
		Name:          meta.Name,
		CreatedAt:     meta.CreatedAt,
		TransactionID: txID,
		StorageKind:   index.StorageLedgerOnly,
	}
}

// Now exposes the manager clock for callers building timestamps.
func (m *Manager) Now() time.Time { return m.codec.Now() }
