package objectstore

import (
	"github.com/bitfsorg/ledgerfs-go/envelope"
)

// Storage locations of file content.
const (
	StorageInline   = "inline"
	StorageExternal = "external"
)

// DefaultVersion is the version of a newly created file.
const DefaultVersion = "1.0"

// DefaultContentEncoding is used when a file is created without one.
const DefaultContentEncoding = "identity"

// Result carries the outcome of a ledger write.
type Result struct {
	TransactionID string
	// IndexPending is set when the ledger write succeeded but the secondary
	// index could not be updated. The verifier reconciles it.
	IndexPending bool
}

// Folder is a folder as recorded on the ledger.
type Folder struct {
	Result
	ObjectID       string
	Name           string
	OwnerID        string
	ParentFolderID string
	Path           string
	CreatedAt      int64
	UpdatedAt      int64
}

// File is a file as recorded on the ledger.
type File struct {
	Result
	ObjectID        string
	Name            string
	OwnerID         string
	ParentFolderID  string
	Path            string
	ContentHash     string
	ContentSize     int64
	ContentEncoding string
	ContentType     string
	Version         string
	Storage         string
	CreatedAt       int64
	UpdatedAt       int64
}

// FileOptions are the optional attributes of a new file.
type FileOptions struct {
	ContentType     string
	ContentEncoding string
	// Version overrides DefaultVersion.
	Version string
}

// Object is an object read back from the ledger.
type Object struct {
	ObjectID string
	Metadata envelope.Metadata
	// Content is nil for folders and for metadata-only reads.
	Content     []byte
	ContentHash string
	Storage     string
	Timestamp   int64
}

// IsFolder reports whether the object is a folder.
func (o *Object) IsFolder() bool { return o.Metadata.Kind == envelope.KindFolder }

// Folder returns the object as a Folder.
func (o *Object) Folder() *Folder {
	return folderFromMeta(o.ObjectID, o.Metadata)
}

// File returns the object as a File.
func (o *Object) File() *File {
	return fileFromMeta(o.ObjectID, o.Metadata, o.ContentHash, o.Storage)
}

func folderFromMeta(id string, m envelope.Metadata) *Folder {
	return &Folder{
		ObjectID:       id,
		Name:           m.Name,
		OwnerID:        m.OwnerID,
		ParentFolderID: m.ParentFolderID,
		Path:           m.Path,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func fileFromMeta(id string, m envelope.Metadata, contentHash, storage string) *File {
	return &File{
		ObjectID:        id,
		Name:            m.Name,
		OwnerID:         m.OwnerID,
		ParentFolderID:  m.ParentFolderID,
		Path:            m.Path,
		ContentHash:     contentHash,
		ContentSize:     m.ContentSize,
		ContentEncoding: m.ContentEncoding,
		ContentType:     m.ContentType,
		Version:         m.Version,
		Storage:         storage,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func storageOf(env *envelope.Envelope) string {
	switch {
	case env.HasContent():
		return StorageInline
	case env.IsExternal():
		return StorageExternal
	default:
		return ""
	}
}
