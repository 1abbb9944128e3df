package objectstore

import "errors"

var (
	// ErrNotFound indicates the object id names no object on the ledger.
	ErrNotFound = errors.New("objectstore: object not found")

	// ErrObjectGone indicates the object was deleted. Deletion is terminal.
	ErrObjectGone = errors.New("objectstore: object deleted")

	// ErrVersionConflict indicates an update whose version is not greater
	// than the current one.
	ErrVersionConflict = errors.New("objectstore: version conflict")

	// ErrInvalidVersion indicates a version string that cannot be compared.
	ErrInvalidVersion = errors.New("objectstore: invalid version")

	// ErrFolderNotEmpty indicates a delete of a folder that still has children.
	ErrFolderNotEmpty = errors.New("objectstore: folder not empty")

	// ErrIndexWriteFailed indicates the secondary index could not be updated
	// after the ledger write succeeded. It is logged, never returned to
	// callers of mutating operations.
	ErrIndexWriteFailed = errors.New("objectstore: index write failed")

	// ErrInvalidName indicates an empty or malformed object name.
	ErrInvalidName = errors.New("objectstore: invalid name")

	// ErrInvalidOwner indicates an empty owner or actor id.
	ErrInvalidOwner = errors.New("objectstore: invalid owner")

	// ErrParentRequired indicates a file created without a parent folder.
	ErrParentRequired = errors.New("objectstore: file requires a parent folder")

	// ErrNotFolder indicates a folder operation on a non-folder object.
	ErrNotFolder = errors.New("objectstore: not a folder")

	// ErrNotFile indicates a file operation on a non-file object.
	ErrNotFile = errors.New("objectstore: not a file")

	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = errors.New("objectstore: forbidden")

	// ErrNameTaken indicates a sibling already uses the name. Only returned
	// when name uniqueness is enforced.
	ErrNameTaken = errors.New("objectstore: name already taken")

	// ErrContentUnavailable indicates externally stored content cannot be read.
	ErrContentUnavailable = errors.New("objectstore: content unavailable")
)
