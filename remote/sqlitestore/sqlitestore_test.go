package sqlitestore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"gorm.io/gorm"
)

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(context.Background(), fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestSQLiteStoreSetGetDelete(t *testing.T) {
	s := New(setupSQLiteDB(t), "page", nil)
	ctx := context.Background()

	if err := s.Set(ctx, "collection:7", []byte(`["a","b"]`), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := s.Get(ctx, "collection:7")
	if err != nil || !found || string(value) != `["a","b"]` {
		t.Fatalf("Get() = %q, %v, %v", value, found, err)
	}

	if err := s.Set(ctx, "collection:7", []byte(`["c"]`), 0); err != nil {
		t.Fatalf("Set(update) error = %v", err)
	}
	value, found, err = s.Get(ctx, "collection:7")
	if err != nil || !found || string(value) != `["c"]` {
		t.Fatalf("Get() after update = %q, %v, %v", value, found, err)
	}

	if err := s.Delete(ctx, "collection:7"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, err := s.Get(ctx, "collection:7"); err != nil || found {
		t.Fatalf("Get() after delete found=%v err=%v", found, err)
	}
}

func TestSQLiteStoreExpiry(t *testing.T) {
	clk := clock.NewMock()
	db := setupSQLiteDB(t)
	s := New(db, "api", clk)
	ctx := context.Background()

	if err := s.Set(ctx, "short", []byte("1"), time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "forever", []byte("2"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clk.Add(time.Second)

	if _, found, _ := s.Get(ctx, "short"); found {
		t.Fatalf("expected short to be expired")
	}
	if _, found, _ := s.Get(ctx, "forever"); !found {
		t.Fatalf("expected forever to survive")
	}

	_ = s.Set(ctx, "short2", []byte("3"), time.Second)
	clk.Add(2 * time.Second)

	n, err := PurgeExpired(ctx, db, clk.Now())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}
}

func TestSQLiteStoreNamespacesAreIsolated(t *testing.T) {
	db := setupSQLiteDB(t)
	page := New(db, "page", nil)
	user := New(db, "user", nil)
	ctx := context.Background()

	_ = page.Set(ctx, "k", []byte("page"), 0)
	_ = user.Set(ctx, "k", []byte("user"), 0)

	if err := page.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if _, found, _ := page.Get(ctx, "k"); found {
		t.Fatalf("expected page namespace to be cleared")
	}
	v, found, _ := user.Get(ctx, "k")
	if !found || string(v) != "user" {
		t.Fatalf("expected user namespace untouched, got %q %v", v, found)
	}
}

func TestSQLiteStoreRejectsEmptyKey(t *testing.T) {
	s := New(setupSQLiteDB(t), "x", nil)
	ctx := context.Background()

	if err := s.Set(ctx, "", []byte("v"), 0); err == nil {
		t.Fatalf("Set() expected error for empty key")
	}
	if _, _, err := s.Get(ctx, ""); err == nil {
		t.Fatalf("Get() expected error for empty key")
	}
	if err := s.Delete(ctx, ""); err == nil {
		t.Fatalf("Delete() expected error for empty key")
	}
}
