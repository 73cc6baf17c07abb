package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOutsideRoot is returned when a relative path resolves outside the store root.
	ErrOutsideRoot = errors.New("path escapes storage root")
	// ErrNotExist is returned when the referenced entry is missing.
	ErrNotExist = errors.New("entry does not exist")
)

// FileSystemStore keeps files and folders under a single root directory.
// The portal uses one store for staging and one for the shared area.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: filepath.Clean(basePath)}
}

// Root returns the store's root directory.
func (fs *FileSystemStore) Root() string {
	return fs.basePath
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Resolve joins a slash-separated relative path onto the root and checks
// that the result stays strictly inside it. The check is lexical only.
func (fs *FileSystemStore) Resolve(rel string) (string, error) {
	target := filepath.Join(fs.basePath, filepath.FromSlash(rel))
	if !Within(fs.basePath, target) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return target, nil
}

// Save writes data to rel, creating parent directories. An existing file is replaced.
// Returns the number of bytes written.
func (fs *FileSystemStore) Save(rel string, data io.Reader) (int64, error) {
	filePath, err := fs.Resolve(rel)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		// Clean up partial file on error
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	return n, nil
}

// Exists reports whether rel names an existing file or directory.
func (fs *FileSystemStore) Exists(rel string) bool {
	p, err := fs.Resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// RemoveAll deletes rel, recursively when it is a directory.
func (fs *FileSystemStore) RemoveAll(rel string) error {
	p, err := fs.Resolve(rel)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, rel)
		}
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

// MoveTo renames rel from this store to dstRel inside dst, creating any
// missing parent directories at the destination.
func (fs *FileSystemStore) MoveTo(rel string, dst *FileSystemStore, dstRel string) error {
	src, err := fs.Resolve(rel)
	if err != nil {
		return err
	}
	target, err := dst.Resolve(dstRel)
	if err != nil {
		return err
	}

	if _, err := os.Lstat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, rel)
		}
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	if err := os.Rename(src, target); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, rel)
		}
		return fmt.Errorf("failed to move %s to %s: %w", src, target, err)
	}
	return nil
}

// Within reports whether target lies strictly inside root, comparing the
// cleaned absolute paths.
func Within(root, target string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
