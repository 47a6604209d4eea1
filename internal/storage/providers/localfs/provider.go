// Package localfs implements storage.Provider on a local directory.
// A key "<namespace>/<name>" is stored at <root>/<namespace>/<name>.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccdsupport/ticketdesk/internal/storage"
)

// Provider stores blobs below a root directory.
type Provider struct {
	root string
}

// New creates a provider rooted at dir. The directory is created lazily on first write.
func New(dir string) (*Provider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}
	return &Provider{root: abs}, nil
}

// Root returns the absolute root directory.
func (p *Provider) Root() string {
	return p.root
}

// Put writes data atomically by renaming a temp file over the destination.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Open reads a stored blob. A missing key yields storage.ErrNotFound.
func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := p.hostPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes a blob. Deleting a missing key is not an error.
func (p *Provider) Delete(_ context.Context, key string) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// ListPrefix returns the keys in the namespace directory whose name starts with the prefix's
// final element.
func (p *Provider) ListPrefix(_ context.Context, prefix string) ([]string, error) {
	namespace, base := splitKey(filepath.Clean(prefix))
	if namespace == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(p.root, namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		if strings.HasPrefix(name, base) {
			keys = append(keys, namespace+"/"+name)
		}
	}
	return keys, nil
}

// hostPath converts a key into a file path below root.
func (p *Provider) hostPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute key is forbidden: %s", key)
	}
	if strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("path traversal is forbidden: %s", key)
	}
	namespace, name := splitKey(clean)
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("invalid storage key: %s", key)
	}
	joined := filepath.Join(p.root, namespace, name)
	if !strings.HasPrefix(joined, p.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes state dir: %s", key)
	}
	return joined, nil
}

// splitKey splits "<namespace>/<name>" at the first separator.
func splitKey(key string) (namespace, name string) {
	key = filepath.ToSlash(key)
	idx := strings.IndexByte(key, '/')
	if idx <= 0 {
		return "", key
	}
	return key[:idx], key[idx+1:]
}
