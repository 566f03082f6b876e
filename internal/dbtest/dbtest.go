// Package dbtest opens migrated in-memory databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/stockledger/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns a private in-memory sqlite database with the full schema. A single
// connection keeps transactions serialized.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Drifter writes straight to the item table, bypassing the ledger, so tests can
// reproduce drift between items and their change log.
type Drifter struct {
	db *gorm.DB
}

func NewDrifter(db *gorm.DB) *Drifter {
	return &Drifter{db: db}
}

func (d *Drifter) ForceQuantity(ctx context.Context, itemID int64, quantity int) error {
	return d.db.WithContext(ctx).Exec(
		`UPDATE inventory_items SET quantity = ?, updated_at = ? WHERE id = ?`,
		quantity,
		time.Now().UTC(),
		itemID,
	).Error
}

// InsertBareItem stores an item without its initial change record.
func (d *Drifter) InsertBareItem(ctx context.Context, id int64, sku string, quantity, threshold int) error {
	now := time.Now().UTC()
	return d.db.WithContext(ctx).Exec(
		`INSERT INTO inventory_items (id, sku, name, quantity, reorder_threshold, unit_price, active,
		  created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		sku,
		sku,
		quantity,
		threshold,
		0,
		true,
		"test",
		"test",
		now,
		now,
	).Error
}
