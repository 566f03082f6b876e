package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/stockledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Append(ctx context.Context, db *gorm.DB, record *ChangeRecord) error
	FindByItem(ctx context.Context, db *gorm.DB, itemID int64, page pagination.Pagination) ([]ChangeRecord, int64, error)
	FindAll(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]ChangeRecord, int64, error)
	FindByDateRange(ctx context.Context, db *gorm.DB, start, end time.Time) ([]ChangeRecord, error)
	FindByActor(ctx context.Context, db *gorm.DB, actor string, page pagination.Pagination) ([]ChangeRecord, int64, error)
	FindByChangeType(ctx context.Context, db *gorm.DB, changeType ChangeType, page pagination.Pagination) ([]ChangeRecord, int64, error)
	FindRecentActivity(ctx context.Context, db *gorm.DB, limit int) ([]ActivityEntry, error)
	QuantitySnapshots(ctx context.Context, db *gorm.DB) ([]QuantitySnapshot, error)
}
