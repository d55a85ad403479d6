// Package storage provides upload, result and scratch file storage.
// It defines the Storage interface (port) and implementations for local
// disk and S3 publishing, plus the retention Sweeper.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for the files a styling job touches.
// Uploads and results live in long-lived directories swept by age; frame
// sequences live in per-job workspaces removed when the job ends.
type Storage interface {
	// SaveUpload stores an uploaded file under name in the upload directory
	// and returns its path. Only the base name of name is used.
	SaveUpload(ctx context.Context, name string, data io.Reader) (path string, err error)

	// Open reads a stored file. The caller must close the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// ResultPath returns the path a result named name is written to.
	ResultPath(name string) string

	// NewWorkspace creates an empty scratch directory for one job.
	NewWorkspace(ctx context.Context, prefix string) (*Workspace, error)

	// CleanupTemp removes the specified files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
