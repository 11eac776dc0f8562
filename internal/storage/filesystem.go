package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemBackend stores objects as {root}/{bucket}/{key}.
type FilesystemBackend struct {
	root string
}

// NewFilesystemBackend creates a backend rooted at root. The directory is created lazily.
func NewFilesystemBackend(root string) *FilesystemBackend {
	return &FilesystemBackend{root: root}
}

func (f *FilesystemBackend) Name() string { return "filesystem" }

// LocalPath returns where bucket/key lives on disk, rejecting anything that would escape the root.
func (f *FilesystemBackend) LocalPath(bucket, key string) (string, error) {
	for _, part := range []string{bucket, key} {
		if part == "" || strings.ContainsRune(part, 0) || filepath.IsAbs(part) || filepath.VolumeName(part) != "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, part)
		}
		for _, seg := range strings.FieldsFunc(part, func(r rune) bool { return r == '/' || r == '\\' }) {
			if seg == ".." {
				return "", fmt.Errorf("%w: %q", ErrInvalidKey, part)
			}
		}
	}

	root := filepath.Clean(f.root)
	full := filepath.Join(root, bucket, key)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes storage root", ErrInvalidKey)
	}

	return full, nil
}

// Put writes to a temporary sibling first so readers never observe a partial file.
func (f *FilesystemBackend) Put(ctx context.Context, bucket, key string, r io.Reader, _ int64) error {
	full, err := f.LocalPath(bucket, key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("moving file into place: %w", err)
	}

	return nil
}

// Get opens bucket/key. The caller closes the reader.
func (f *FilesystemBackend) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	full, err := f.LocalPath(bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}

	return file, nil
}

// Delete is idempotent.
func (f *FilesystemBackend) Delete(_ context.Context, bucket, key string) error {
	full, err := f.LocalPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing file: %w", err)
	}

	return nil
}

func (f *FilesystemBackend) Exists(_ context.Context, bucket, key string) (bool, error) {
	full, err := f.LocalPath(bucket, key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking file: %w", err)
	}

	return true, nil
}

// ctxReader stops a long copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
