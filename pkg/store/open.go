// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Backend types accepted in Config.Type.
const (
	TypeFile   = "file"
	TypeSQLite = "sqlite"
	TypeMemory = "memory"
)

// Config selects and locates the store backend.
type Config struct {
	Type string `yaml:"type"`
	// Path is a directory for the file backend and a database file for sqlite.
	Path string `yaml:"path"`
}

// Open returns the backend described by cfg.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case TypeFile, "":
		return NewFileStore(cfg.Path)
	case TypeSQLite:
		return NewSQLStore(ctx, cfg.Path, log)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
