package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

type SQLiteConfig struct {
	Path        string `json:"path"`
	BusyTimeout int    `json:"busy_timeout"`
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps entries in a single-table sqlite file.
type SQLiteStore struct {
	lifecycle
	db     *sql.DB
	logger types.Logger
	config *SQLiteConfig
}

func NewSQLiteStore(logger types.Logger, config *types.StorageConfig) (*SQLiteStore, error) {
	sqliteConfig := &SQLiteConfig{
		Path:        "data/cache.db",
		BusyTimeout: 5000,
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, sqliteConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite storage config")
		}
	}

	dsn := "file:" + sqliteConfig.Path + "?_journal_mode=WAL&_busy_timeout=" + strconv.Itoa(sqliteConfig.BusyTimeout)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(err, "failed to open sqlite storage")
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to create sqlite schema")
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger,
		config: sqliteConfig,
	}

	store.init()
	return store, nil
}

func (s *SQLiteStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte

	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, types.Errorf(types.ErrStorageRead, "key %s: %v", key, err)
	}

	return value, true, nil
}

func (s *SQLiteStore) Write(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return types.ErrStorageKeyEmpty
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return types.Errorf(types.ErrStorageWrite, "key %s: %v", key, err)
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return types.Errorf(types.ErrStorageDelete, "key %s: %v", key, err)
	}

	return nil
}

// ListKeysWithPrefix compares raw bytes so that multi-byte prefixes match.
func (s *SQLiteStore) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE substr(CAST(key AS BLOB), 1, ?) = ? ORDER BY key`,
		len(prefix), []byte(prefix))
	if err != nil {
		return nil, types.Errorf(types.ErrStorageRead, "prefix %s: %v", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, types.Errorf(types.ErrStorageRead, "prefix %s: %v", prefix, err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, types.Errorf(types.ErrStorageRead, "prefix %s: %v", prefix, err)
	}

	return keys, nil
}

func (s *SQLiteStore) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to ping sqlite storage")
	}

	s.setState(StateRunning)
	s.logger.Info("SQLite storage started", zap.String("path", s.config.Path))
	return nil
}

func (s *SQLiteStore) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer s.setState(StateStopped)

	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close sqlite storage")
	}

	s.logger.Info("SQLite storage stopped")
	return nil
}
