package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/stockledger/pkg/db/option"
	"github.com/smallbiznis/stockledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *Item) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Item, error)
	FindActiveByID(ctx context.Context, db *gorm.DB, id int64) (*Item, error)
	FindActiveByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*Item, error)
	FindActiveBySKU(ctx context.Context, db *gorm.DB, sku string) (*Item, error)
	ExistsBySKU(ctx context.Context, db *gorm.DB, sku string) (bool, error)
	UpdateMetadata(ctx context.Context, db *gorm.DB, item *Item) error
	CompareAndSetQuantity(ctx context.Context, db *gorm.DB, id int64, oldQuantity, newQuantity int, actor string, at time.Time) (bool, error)
	Deactivate(ctx context.Context, db *gorm.DB, id int64, actor string, at time.Time) (bool, error)

	FindActive(ctx context.Context, db *gorm.DB, sort option.SortBy, page pagination.Pagination) ([]Item, int64, error)
	FindLowStock(ctx context.Context, db *gorm.DB) ([]Item, error)
	Search(ctx context.Context, db *gorm.DB, term string, page pagination.Pagination) ([]Item, int64, error)
	FindByFilters(ctx context.Context, db *gorm.DB, filter FilterRequest, page pagination.Pagination) ([]Item, int64, error)
	DistinctValues(ctx context.Context, db *gorm.DB, column string) ([]string, error)
	Totals(ctx context.Context, db *gorm.DB) (StockTotals, error)
	CategoryCounts(ctx context.Context, db *gorm.DB) ([]CategoryCount, error)
}
