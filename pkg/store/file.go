// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"maunium.net/go/mautrix/id"
)

// FileStore keeps one plain text file per record under a directory derived
// from the account's server name:
//
//	<root>/<server name>/<localpart>/<key>
type FileStore struct {
	root string
	mu   sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("file store path is empty")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (f *FileStore) recordPath(account id.UserID, key string) (string, error) {
	localpart, server, err := account.Parse()
	if err != nil {
		return "", fmt.Errorf("failed to parse account %q: %w", account, err)
	}
	for _, part := range []string{server, localpart, key} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid path component %q", part)
		}
	}
	return filepath.Join(f.root, server, localpart, key), nil
}

func (f *FileStore) Get(_ context.Context, account id.UserID, key string) (string, bool, error) {
	path, err := f.recordPath(account, key)
	if err != nil {
		return "", false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

func (f *FileStore) Put(_ context.Context, account id.UserID, key, value string) error {
	path, err := f.recordPath(account, key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create account directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+key+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func (f *FileStore) Close() error {
	return nil
}
