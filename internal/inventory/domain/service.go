package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	"github.com/smallbiznis/stockledger/pkg/db/pagination"
)

// Service is the stock ledger. Every mutation takes the acting identity explicitly.
type Service interface {
	Create(ctx context.Context, actor string, req CreateRequest) (*Item, error)
	UpdateMetadata(ctx context.Context, actor string, id string, req UpdateRequest) (*Item, error)
	UpdateStock(ctx context.Context, actor string, id string, req StockUpdateRequest) (*Item, error)
	SoftDelete(ctx context.Context, actor string, id string) error

	Get(ctx context.Context, id string) (*Item, error)
	GetBySKU(ctx context.Context, sku string) (*Item, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	LowStockItems(ctx context.Context) ([]Item, error)
	Search(ctx context.Context, term string, page pagination.Pagination) (ListResponse, error)
	Filter(ctx context.Context, filter FilterRequest, page pagination.Pagination) (ListResponse, error)
	DistinctCategories(ctx context.Context) ([]string, error)
	DistinctSuppliers(ctx context.Context) ([]string, error)
	DistinctLocations(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*Stats, error)
	TopCategories(ctx context.Context, limit int) ([]CategoryCount, error)
}

// Notifier delivers low-stock alerts. Implementations own their retry and logging;
// the ledger treats a returned error as informational.
type Notifier interface {
	NotifyLowStock(ctx context.Context, item Item) error
	NotifyLowStockBatch(ctx context.Context, items []Item) error
}

type CreateRequest struct {
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	Description      *string         `json:"description"`
	Quantity         int             `json:"quantity"`
	ReorderThreshold int             `json:"reorder_threshold"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Category         *string         `json:"category"`
	SupplierName     *string         `json:"supplier_name"`
	SupplierEmail    *string         `json:"supplier_email"`
	SupplierPhone    *string         `json:"supplier_phone"`
	Location         *string         `json:"location"`
}

// UpdateRequest overwrites every descriptive field. Quantity is not part of it.
type UpdateRequest struct {
	Name             string          `json:"name"`
	Description      *string         `json:"description"`
	ReorderThreshold int             `json:"reorder_threshold"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Category         *string         `json:"category"`
	SupplierName     *string         `json:"supplier_name"`
	SupplierEmail    *string         `json:"supplier_email"`
	SupplierPhone    *string         `json:"supplier_phone"`
	Location         *string         `json:"location"`
}

type StockUpdateRequest struct {
	Quantity   *int    `json:"quantity"`
	ChangeType string  `json:"change_type"`
	Reason     *string `json:"reason"`
	RequestID  string  `json:"-"`
}

type ListRequest struct {
	Page    pagination.Pagination
	SortBy  string
	SortDir string
}

type FilterRequest struct {
	Category string
	Supplier string
	Location string
}

func (f FilterRequest) Empty() bool {
	return f.Category == "" && f.Supplier == "" && f.Location == ""
}

type ListResponse struct {
	Items    []Item              `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Stats struct {
	TotalItems           int64            `json:"total_items"`
	LowStockItems        int64            `json:"low_stock_items"`
	OutOfStockItems      int64            `json:"out_of_stock_items"`
	TotalStockUnits      int64            `json:"total_stock_units"`
	TotalInventoryValue  decimal.Decimal  `json:"total_inventory_value"`
	CategoryDistribution map[string]int64 `json:"category_distribution"`
	StockStatus          map[string]int64 `json:"stock_status"`
}

const (
	StockStatusOutOfStock = "out_of_stock"
	StockStatusLowStock   = "low_stock"
	StockStatusInStock    = "in_stock"

	UncategorizedLabel = "Uncategorized"
)

const (
	MaxSKULength           = 50
	MaxNameLength          = 100
	MaxDescriptionLength   = 500
	MaxCategoryLength      = 50
	MaxSupplierNameLength  = 100
	MaxSupplierEmailLength = 100
	MaxSupplierPhoneLength = 20
	MaxLocationLength      = 50
	MaxReasonLength        = 500
	MaxActorLength         = 100
)

var (
	ErrNotFound          = errors.New("not_found")
	ErrDuplicateSKU      = errors.New("duplicate_sku")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidSKU        = errors.New("invalid_sku")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInvalidThreshold  = errors.New("invalid_threshold")
	ErrInvalidUnitPrice  = errors.New("invalid_unit_price")
	ErrInvalidChangeType = changelogdomain.ErrInvalidChangeType
	ErrInvalidReason     = errors.New("invalid_reason")
	ErrInvalidActor      = changelogdomain.ErrInvalidActor
	ErrInvalidField      = errors.New("invalid_field")
	ErrConcurrentUpdate  = errors.New("concurrent_update")
	ErrPersistence       = errors.New("persistence_failure")
)
