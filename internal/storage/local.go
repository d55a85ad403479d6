package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Static errors for storage operations.
var (
	// ErrS3NotConfigured is returned when S3 operations are attempted
	// without proper configuration.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrInvalidName is returned when a file name reduces to nothing usable.
	ErrInvalidName = errors.New("invalid file name")
)

// Dirs names the directories LocalStorage manages.
type Dirs struct {
	Upload string
	Result string
	Temp   string
}

// LocalStorage implements the Storage interface using local disk.
// It does not support S3 operations unless wrapped with S3Storage.
type LocalStorage struct {
	dirs Dirs
}

// NewLocalStorage creates a new LocalStorage instance.
// Empty directories default to subdirectories of os.TempDir()/artstyle.
// All directories are created if they don't exist.
func NewLocalStorage(dirs Dirs) (*LocalStorage, error) {
	root := filepath.Join(os.TempDir(), "artstyle")
	if dirs.Upload == "" {
		dirs.Upload = filepath.Join(root, "uploads")
	}
	if dirs.Result == "" {
		dirs.Result = filepath.Join(root, "results")
	}
	if dirs.Temp == "" {
		dirs.Temp = filepath.Join(root, "tmp")
	}

	for _, dir := range []string{dirs.Upload, dirs.Result, dirs.Temp} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return &LocalStorage{dirs: dirs}, nil
}

// Dirs returns the managed directories.
func (s *LocalStorage) Dirs() Dirs {
	return s.dirs
}

// SaveUpload writes data to the upload directory under the base name of name.
// The file is written to a temporary name first and renamed into place.
func (s *LocalStorage) SaveUpload(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	base, err := cleanName(name)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(s.dirs.Upload, ".partial_*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	tmpName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	path := filepath.Join(s.dirs.Upload, base)
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("move upload file: %w", err)
	}

	return path, nil
}

// Open opens a stored file for reading.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return f, nil
}

// ResultPath joins the base name of name onto the result directory.
func (s *LocalStorage) ResultPath(name string) string {
	return filepath.Join(s.dirs.Result, filepath.Base(name))
}

// NewWorkspace creates a fresh scratch directory under the temp directory.
func (s *LocalStorage) NewWorkspace(ctx context.Context, prefix string) (*Workspace, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir, err := os.MkdirTemp(s.dirs.Temp, prefix+"_*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// CleanupTemp removes the specified files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// UploadToS3 is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

func cleanName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}
