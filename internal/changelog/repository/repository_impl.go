package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/stockledger/internal/changelog/domain"
	"github.com/smallbiznis/stockledger/pkg/db/pagination"
	"gorm.io/gorm"
)

const recordColumns = `id, item_id, old_quantity, new_quantity, delta, change_type, reason, changed_by,
	metadata, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Append is the only write path for change records.
func (r *repo) Append(ctx context.Context, db *gorm.DB, record *domain.ChangeRecord) error {
	if record == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO stock_change_logs (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.ItemID,
		record.OldQuantity,
		record.NewQuantity,
		record.Delta,
		record.ChangeType,
		record.Reason,
		record.ChangedBy,
		record.Metadata,
		record.CreatedAt,
	).Error
}

func (r *repo) FindByItem(ctx context.Context, db *gorm.DB, itemID int64, page pagination.Pagination) ([]domain.ChangeRecord, int64, error) {
	return r.findPage(ctx, db, "item_id = ?", []any{itemID}, page)
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]domain.ChangeRecord, int64, error) {
	return r.findPage(ctx, db, "", nil, page)
}

func (r *repo) FindByActor(ctx context.Context, db *gorm.DB, actor string, page pagination.Pagination) ([]domain.ChangeRecord, int64, error) {
	return r.findPage(ctx, db, "changed_by = ?", []any{actor}, page)
}

func (r *repo) FindByChangeType(ctx context.Context, db *gorm.DB, changeType domain.ChangeType, page pagination.Pagination) ([]domain.ChangeRecord, int64, error) {
	return r.findPage(ctx, db, "change_type = ?", []any{changeType}, page)
}

func (r *repo) FindByDateRange(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.ChangeRecord, error) {
	var records []domain.ChangeRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM stock_change_logs
		 WHERE created_at >= ? AND created_at <= ?
		 ORDER BY created_at DESC, id DESC`,
		start.UTC(),
		end.UTC(),
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) FindRecentActivity(ctx context.Context, db *gorm.DB, limit int) ([]domain.ActivityEntry, error) {
	var entries []domain.ActivityEntry
	err := db.WithContext(ctx).Raw(
		`SELECT l.id, l.item_id, l.old_quantity, l.new_quantity, l.delta, l.change_type, l.reason,
		        l.changed_by, l.metadata, l.created_at, i.sku AS item_sku, i.name AS item_name
		 FROM stock_change_logs l
		 JOIN inventory_items i ON i.id = l.item_id
		 ORDER BY l.created_at DESC, l.id DESC
		 LIMIT ?`,
		limit,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// QuantitySnapshots returns every active item with the new_quantity of its latest
// change record, or NULL when the item has none.
func (r *repo) QuantitySnapshots(ctx context.Context, db *gorm.DB) ([]domain.QuantitySnapshot, error) {
	var snapshots []domain.QuantitySnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT i.id AS item_id, i.sku, i.quantity,
		        l.new_quantity AS logged_quantity, l.id AS last_record_id
		 FROM inventory_items i
		 LEFT JOIN stock_change_logs l ON l.id = (
		     SELECT l2.id FROM stock_change_logs l2
		     WHERE l2.item_id = i.id
		     ORDER BY l2.created_at DESC, l2.id DESC
		     LIMIT 1
		 )
		 WHERE i.active = ?
		 ORDER BY i.id ASC`,
		true,
	).Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *repo) findPage(ctx context.Context, db *gorm.DB, where string, args []any, page pagination.Pagination) ([]domain.ChangeRecord, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.ChangeRecord{})
	if where != "" {
		stmt = stmt.Where(where, args...)
	}
	stmt = stmt.Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChangeRecord{}, 0, nil
	}

	var records []domain.ChangeRecord
	err := stmt.
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
