package merger

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Usage errors.
var (
	// ErrNoSegments is returned when a merger is constructed for zero segments.
	ErrNoSegments = errors.New("segment count must be positive")

	// ErrStaleSegment is returned in strict mode for a file-mode index that
	// is already behind the write cursor.
	ErrStaleSegment = errors.New("segment index is behind the write cursor")

	// ErrIndexOutOfRange is returned in strict mode for an index past the
	// last segment.
	ErrIndexOutOfRange = errors.New("segment index out of range")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("merger is closed")
)

// Sentinel errors for storage failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrPermissionDenied indicates a permission/access failure (EACCES, EPERM).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the target path does not exist (ENOENT).
	ErrNotFound = errors.New("not found")

	// ErrDiskFull indicates storage is out of space or quota (ENOSPC, EDQUOT).
	ErrDiskFull = errors.New("no space left on device")

	// ErrIO covers every other filesystem failure.
	ErrIO = errors.New("i/o error")
)

// StorageError wraps a filesystem error with an operation, a path and a
// classification. The original error stays in the chain for errors.As and
// errors.Is (fs.ErrNotExist and friends still match).
type StorageError struct {
	// Kind is the sentinel error for classification (e.g., ErrDiskFull).
	Kind error
	// Op is the operation that failed (e.g., "create", "write", "state_write").
	Op string
	// Path is the file involved.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// wrapStorage classifies and wraps a filesystem error.
// Returns nil if err is nil.
func wrapStorage(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{
		Kind: classifyError(err),
		Op:   op,
		Path: path,
		Err:  err,
	}
}

func classifyError(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return ErrDiskFull
	default:
		return ErrIO
	}
}
