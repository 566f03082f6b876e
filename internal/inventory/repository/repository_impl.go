package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/stockledger/internal/inventory/domain"
	"github.com/smallbiznis/stockledger/pkg/db/option"
	"github.com/smallbiznis/stockledger/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const itemColumns = `id, sku, name, description, quantity, reorder_threshold, unit_price, category,
	supplier_name, supplier_email, supplier_phone, location, active, created_by, updated_by,
	created_at, updated_at`

var distinctColumns = map[string]bool{
	"category":      true,
	"supplier_name": true,
	"location":      true,
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	if item == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO inventory_items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.SKU,
		item.Name,
		item.Description,
		item.Quantity,
		item.ReorderThreshold,
		item.UnitPrice,
		item.Category,
		item.SupplierName,
		item.SupplierEmail,
		item.SupplierPhone,
		item.Location,
		item.Active,
		item.CreatedBy,
		item.UpdatedBy,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Item, error) {
	var item domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindActiveByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Item, error) {
	var item domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ? AND active = ?`,
		id,
		true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// FindActiveByIDForUpdate takes a row lock on dialects that support it. SQLite
// serializes writers on its own.
func (r *repo) FindActiveByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.Item, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("id = ? AND active = ?", id, true)
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var items []domain.Item
	if err := stmt.Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) FindActiveBySKU(ctx context.Context, db *gorm.DB, sku string) (*domain.Item, error) {
	var item domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items WHERE sku = ? AND active = ?`,
		sku,
		true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// ExistsBySKU includes deactivated items: a SKU is never reused.
func (r *repo) ExistsBySKU(ctx context.Context, db *gorm.DB, sku string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM inventory_items WHERE sku = ?`,
		sku,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UpdateMetadata(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	if item == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE inventory_items
		 SET name = ?, description = ?, reorder_threshold = ?, unit_price = ?, category = ?,
		     supplier_name = ?, supplier_email = ?, supplier_phone = ?, location = ?,
		     updated_by = ?, updated_at = ?
		 WHERE id = ? AND active = ?`,
		item.Name,
		item.Description,
		item.ReorderThreshold,
		item.UnitPrice,
		item.Category,
		item.SupplierName,
		item.SupplierEmail,
		item.SupplierPhone,
		item.Location,
		item.UpdatedBy,
		item.UpdatedAt,
		item.ID,
		true,
	).Error
}

// CompareAndSetQuantity writes newQuantity only while the stored quantity still equals
// oldQuantity. It reports false when another writer got there first.
func (r *repo) CompareAndSetQuantity(ctx context.Context, db *gorm.DB, id int64, oldQuantity, newQuantity int, actor string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE inventory_items
		 SET quantity = ?, updated_by = ?, updated_at = ?
		 WHERE id = ? AND active = ? AND quantity = ?`,
		newQuantity,
		actor,
		at,
		id,
		true,
		oldQuantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id int64, actor string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE inventory_items SET active = ?, updated_by = ?, updated_at = ?
		 WHERE id = ? AND active = ?`,
		false,
		actor,
		at,
		id,
		true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, sort option.SortBy, page pagination.Pagination) ([]domain.Item, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("active = ?", true).
		Session(&gorm.Session{})
	return r.findPage(stmt, sort, page)
}

func (r *repo) FindLowStock(ctx context.Context, db *gorm.DB) ([]domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items
		 WHERE active = ? AND quantity <= reorder_threshold
		 ORDER BY quantity ASC, id ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Search(ctx context.Context, db *gorm.DB, term string, page pagination.Pagination) ([]domain.Item, int64, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	stmt := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("active = ?", true).
		Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(sku) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern).
		Session(&gorm.Session{})
	return r.findPage(stmt, option.SortBy{Column: "name"}, page)
}

func (r *repo) FindByFilters(ctx context.Context, db *gorm.DB, filter domain.FilterRequest, page pagination.Pagination) ([]domain.Item, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("active = ?", true)

	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
	}
	if filter.Supplier != "" {
		stmt = stmt.Where("supplier_name = ?", filter.Supplier)
	}
	if filter.Location != "" {
		stmt = stmt.Where("location = ?", filter.Location)
	}

	return r.findPage(stmt.Session(&gorm.Session{}), option.SortBy{Column: "name"}, page)
}

func (r *repo) DistinctValues(ctx context.Context, db *gorm.DB, column string) ([]string, error) {
	if !distinctColumns[column] {
		return nil, gorm.ErrInvalidField
	}
	var values []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT ` + column + ` FROM inventory_items
		 WHERE active = ? AND ` + column + ` IS NOT NULL AND TRIM(` + column + `) <> ''
		 ORDER BY ` + column + ` ASC`,
		true,
	).Scan(&values).Error
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (r *repo) Totals(ctx context.Context, db *gorm.DB) (domain.StockTotals, error) {
	var totals domain.StockTotals
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS total_items,
		        COALESCE(SUM(CASE WHEN quantity <= reorder_threshold THEN 1 ELSE 0 END), 0) AS low_stock,
		        COALESCE(SUM(CASE WHEN quantity = 0 THEN 1 ELSE 0 END), 0) AS out_of_stock,
		        COALESCE(SUM(quantity), 0) AS total_units,
		        COALESCE(SUM(quantity * unit_price), 0) AS total_value
		 FROM inventory_items WHERE active = ?`,
		true,
	).Scan(&totals).Error
	if err != nil {
		return domain.StockTotals{}, err
	}
	return totals, nil
}

func (r *repo) CategoryCounts(ctx context.Context, db *gorm.DB) ([]domain.CategoryCount, error) {
	var counts []domain.CategoryCount
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(NULLIF(TRIM(category), ''), ?) AS category, COUNT(1) AS item_count
		 FROM inventory_items WHERE active = ?
		 GROUP BY 1
		 ORDER BY item_count DESC, category ASC`,
		domain.UncategorizedLabel,
		true,
	).Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *repo) findPage(stmt *gorm.DB, sort option.SortBy, page pagination.Pagination) ([]domain.Item, int64, error) {
	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Item{}, 0, nil
	}

	var items []domain.Item
	err := option.Apply(stmt, option.WithSortBy(sort), option.WithPagination(page)).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
