package httpapi

import (
	"github.com/bitfsorg/ledgerfs-go/envelope"
	"github.com/bitfsorg/ledgerfs-go/index"
	"github.com/bitfsorg/ledgerfs-go/objectstore"
)

// response is the tagged result every endpoint returns.
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createFolderRequest struct {
	Name           string `json:"name" binding:"required"`
	ParentFolderID string `json:"parentFolderId"`
}

type updateFolderRequest struct {
	Name string `json:"name" binding:"required"`
}

type folderDTO struct {
	ObjectID       string `json:"objectId"`
	Name           string `json:"name"`
	OwnerID        string `json:"ownerId"`
	ParentFolderID string `json:"parentFolderId,omitempty"`
	Path           string `json:"path,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt,omitempty"`
	TransactionID  string `json:"transactionId,omitempty"`
	IndexPending   bool   `json:"indexPending,omitempty"`
}

type fileDTO struct {
	ObjectID        string `json:"objectId"`
	Name            string `json:"name"`
	OwnerID         string `json:"ownerId"`
	ParentFolderID  string `json:"parentFolderId"`
	Path            string `json:"path,omitempty"`
	ContentHash     string `json:"contentHash"`
	ContentSize     int64  `json:"contentSize"`
	ContentEncoding string `json:"contentEncoding,omitempty"`
	ContentType     string `json:"contentType,omitempty"`
	Version         string `json:"version"`
	Storage         string `json:"storage"`
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt,omitempty"`
	TransactionID   string `json:"transactionId,omitempty"`
	IndexPending    bool   `json:"indexPending,omitempty"`
}

// fileContentDTO is a file read back with its content, base64 in JSON.
type fileContentDTO struct {
	fileDTO
	Content []byte `json:"content"`
}

type childDTO struct {
	ObjectID      string `json:"objectId"`
	Name          string `json:"name"`
	OwnerID       string `json:"ownerId"`
	ParentID      string `json:"parentId,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
	TransactionID string `json:"transactionId"`
}

type metadataDTO struct {
	ObjectID    string            `json:"objectId"`
	Metadata    envelope.Metadata `json:"metadata"`
	ContentHash string            `json:"contentHash,omitempty"`
	Storage     string            `json:"storage,omitempty"`
	Timestamp   int64             `json:"timestamp"`
}

func newFolderDTO(f *objectstore.Folder) folderDTO {
	return folderDTO{
		ObjectID:       f.ObjectID,
		Name:           f.Name,
		OwnerID:        f.OwnerID,
		ParentFolderID: f.ParentFolderID,
		Path:           f.Path,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
		TransactionID:  f.TransactionID,
		IndexPending:   f.IndexPending,
	}
}

func newFileDTO(f *objectstore.File) fileDTO {
	return fileDTO{
		ObjectID:        f.ObjectID,
		Name:            f.Name,
		OwnerID:         f.OwnerID,
		ParentFolderID:  f.ParentFolderID,
		Path:            f.Path,
		ContentHash:     f.ContentHash,
		ContentSize:     f.ContentSize,
		ContentEncoding: f.ContentEncoding,
		ContentType:     f.ContentType,
		Version:         f.Version,
		Storage:         f.Storage,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
		TransactionID:   f.TransactionID,
		IndexPending:    f.IndexPending,
	}
}

func newChildDTOs(records []index.Record) []childDTO {
	out := make([]childDTO, 0, len(records))
	for _, r := range records {
		out = append(out, childDTO{
			ObjectID:      r.ObjectID,
			Name:          r.Name,
			OwnerID:       r.OwnerID,
			ParentID:      r.ParentID,
			CreatedAt:     r.CreatedAt,
			TransactionID: r.TransactionID,
		})
	}
	return out
}
