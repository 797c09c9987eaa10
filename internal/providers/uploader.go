package providers

import (
	"context"
	"os"
	"path/filepath"
)

// Uploader retains an uploaded document for later audit. Retention is best
// effort everywhere it is used; implementations only need durability, not
// transactionality.
type Uploader interface {
	UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error)
}

// localUploader writes documents under a directory. Used in dev when no
// object store is configured.
type localUploader struct {
	rootDir string
}

func NewLocalUploader(rootDir string) Uploader {
	return &localUploader{rootDir: rootDir}
}

func (u *localUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	dst := filepath.Join(u.rootDir, objectPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	abs, _ := filepath.Abs(dst)
	return "file://" + abs, nil
}
