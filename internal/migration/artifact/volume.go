package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Volume stores files below a directory, normally the mounted artifact claim.
type Volume struct {
	root string
}

// NewVolume returns a backend rooted at dir. The directory must exist.
func NewVolume(dir string) (*Volume, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact directory %s is not a directory", dir)
	}
	return &Volume{root: dir}, nil
}

func (v *Volume) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(v.root, clean), nil
}

// Put writes the file atomically: the content goes to a temporary file in the
// same directory, is synced, and is then renamed over the target.
func (v *Volume) Put(_ context.Context, key string, data []byte) error {
	target, err := v.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to rename %s: %w", key, err)
	}

	syncDir(dir)
	return nil
}

func (v *Volume) Get(_ context.Context, key string) ([]byte, error) {
	p, err := v.path(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (v *Volume) Exists(_ context.Context, key string) (bool, error) {
	p, err := v.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return true, nil
}

// syncDir makes a completed rename durable. Some filesystems refuse to sync
// directories; the rename itself is already atomic there.
func syncDir(dir string) {
	// #nosec G304
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
