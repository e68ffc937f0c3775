// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

var upgradeTable dbutil.UpgradeTable

func init() {
	upgradeTable.Register(0, 1, 0, "Create kv_store table", dbutil.TxnModeOn, func(ctx context.Context, db *dbutil.Database) error {
		_, err := db.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS kv_store (
				account TEXT NOT NULL,
				key     TEXT NOT NULL,
				value   TEXT NOT NULL,
				PRIMARY KEY (account, key)
			)
		`)
		return err
	})
}

const (
	getRecordQuery = `SELECT value FROM kv_store WHERE account=$1 AND key=$2`
	putRecordQuery = `
		INSERT INTO kv_store (account, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (account, key) DO UPDATE SET value=excluded.value
	`
)

// SQLStore keeps records in a single SQLite table.
type SQLStore struct {
	db *dbutil.Database
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore opens (creating if needed) the database file at path and brings
// its schema up to date.
func NewSQLStore(ctx context.Context, path string, log zerolog.Logger) (*SQLStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store path is empty")
	}
	uri := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path)
	db, err := dbutil.NewWithDialect(uri, "sqlite3")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.Owner = "autoinvite-bot"
	db.UpgradeTable = upgradeTable
	db.Log = dbutil.ZeroLogger(log.With().Str("component", "store").Logger())
	if err = db.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to upgrade database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, account id.UserID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx, getRecordQuery, account, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLStore) Put(ctx context.Context, account id.UserID, key, value string) error {
	_, err := s.db.Exec(ctx, putRecordQuery, account, key, value)
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
