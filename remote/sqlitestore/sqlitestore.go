// Package sqlitestore mirrors cache entries into a SQL table through gorm.
package sqlitestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/remote"
)

type Store struct {
	db        *gorm.DB
	namespace string
	clock     clock.Clock
}

var _ remote.Store = (*Store)(nil)

// New returns a store over db scoped to namespace. The table must exist;
// see Migrate. A nil clk means the wall clock.
func New(db *gorm.DB, namespace string, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{db: db, namespace: namespace, clock: clk}
}

// Open opens (creating the parent directory if needed) and migrates a
// SQLite database at dsn.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	if err := ensureDirectory(dsn); err != nil {
		return nil, errs.Wrap(err, "ensure sqlite directory")
	}

	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errs.Wrap(err, "open sqlite db")
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return errs.Wrap(err, "auto migrate cache_entries")
	}
	return nil
}

func ensureDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || strings.Contains(candidate, ":memory:") || strings.Contains(candidate, "mode=memory") {
		return nil
	}

	candidate = strings.TrimPrefix(candidate, "file:")
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}

	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) scope(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Where("namespace = ?", s.namespace)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, remote.ErrEmptyKey
	}

	var row Entry
	if err := s.scope(ctx).Where("cache_key = ?", key).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(err, "query cache entry")
	}

	if row.ExpiresAt != 0 && row.ExpiresAt <= s.clock.Now().UnixNano() {
		if err := s.scope(ctx).Where("cache_key = ?", key).Delete(&Entry{}).Error; err != nil {
			return nil, false, errs.Wrap(err, "delete expired cache entry")
		}
		return nil, false, nil
	}
	return row.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return remote.ErrEmptyKey
	}

	now := s.clock.Now()
	row := Entry{
		Namespace: s.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: now.UTC().Format(time.RFC3339Nano),
	}
	if ttl > 0 {
		row.ExpiresAt = now.Add(ttl).UnixNano()
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert cache entry")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return remote.ErrEmptyKey
	}

	if err := s.scope(ctx).Where("cache_key = ?", key).Delete(&Entry{}).Error; err != nil {
		return errs.Wrap(err, "delete cache entry")
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.scope(ctx).Delete(&Entry{}).Error; err != nil {
		return errs.Wrap(err, "clear cache entries")
	}
	return nil
}

// Close is a no-op: several namespaces share one *gorm.DB.
func (s *Store) Close() error { return nil }

// PurgeExpired deletes expired rows across all namespaces.
func PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <> 0 AND expires_at <= ?", now.UnixNano()).
		Delete(&Entry{})
	if res.Error != nil {
		return 0, errs.Wrap(res.Error, "purge expired cache entries")
	}
	return res.RowsAffected, nil
}
