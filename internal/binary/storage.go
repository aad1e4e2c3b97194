package binary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Storage variants.
const (
	VariantOriginal = "original"
	VariantThumb    = "thumb"
)

// variants lists the subdirectories used for file storage.
var variants = []string{VariantOriginal, VariantThumb}

var (
	// ErrInsecureFilename is returned when a filename fails security validation.
	ErrInsecureFilename = errors.New("insecure filename")
	// ErrInvalidVariant is returned when a variant name is not recognized.
	ErrInvalidVariant = errors.New("invalid variant")
	// ErrFileExists is returned when attempting to save a file that already exists.
	ErrFileExists = errors.New("file already exists")
)

// isSecureFilename rejects empty and dot-prefixed names, traversal sequences
// and path separators.
func isSecureFilename(filename string) bool {
	if filename == "" || strings.HasPrefix(filename, ".") {
		return false
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") || filepath.IsAbs(filename) {
		return false
	}
	return true
}

// LocalStorage keeps binary files on the local filesystem, one subdirectory
// per variant.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates a LocalStorage rooted at baseDir and ensures all
// variant subdirectories exist.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	for _, v := range variants {
		dir := filepath.Join(baseDir, v)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating binary directory %s: %w", dir, err)
		}
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

func (s *LocalStorage) path(variant, filename string) (string, error) {
	if !isSecureFilename(filename) {
		return "", fmt.Errorf("%w: %q", ErrInsecureFilename, filename)
	}
	if !slices.Contains(variants, variant) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	}
	return filepath.Join(s.baseDir, variant, filename), nil
}

// Save writes data to {baseDir}/{variant}/{filename}, refusing to overwrite
// an existing file.
func (s *LocalStorage) Save(variant, filename string, data []byte) error {
	path, err := s.path(variant, filename)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return fmt.Errorf("creating file %s: %w", path, err)
	}

	_, writeErr := f.Write(data)
	closeErr := f.Close()

	if writeErr != nil {
		_ = os.Remove(path) // we created this file
		return fmt.Errorf("writing file %s: %w", path, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing file %s: %w", path, closeErr)
	}
	return nil
}

// Delete removes {baseDir}/{variant}/{filename}. Missing files are not an error.
func (s *LocalStorage) Delete(variant, filename string) error {
	path, err := s.path(variant, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file %s: %w", path, err)
	}
	return nil
}

// Path returns the filesystem path for a variant file, or "" if the filename
// or variant fails validation.
func (s *LocalStorage) Path(variant, filename string) string {
	path, err := s.path(variant, filename)
	if err != nil {
		return ""
	}
	return path
}
