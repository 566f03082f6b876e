package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is the current stock record of one SKU. Items are never hard deleted so the
// change log can keep referencing them.
type Item struct {
	ID               int64           `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	SKU              string          `json:"sku" gorm:"column:sku;type:varchar(50);not null;uniqueIndex:ux_inventory_items_sku"`
	Name             string          `json:"name" gorm:"type:varchar(100);not null"`
	Description      *string         `json:"description,omitempty" gorm:"type:varchar(500)"`
	Quantity         int             `json:"quantity" gorm:"not null;default:0;index:ix_inventory_items_low_stock,priority:2"`
	ReorderThreshold int             `json:"reorder_threshold" gorm:"column:reorder_threshold;not null;default:0;index:ix_inventory_items_low_stock,priority:3"`
	UnitPrice        decimal.Decimal `json:"unit_price" gorm:"column:unit_price;type:numeric(12,2);not null;default:0"`
	Category         *string         `json:"category,omitempty" gorm:"type:varchar(50)"`
	SupplierName     *string         `json:"supplier_name,omitempty" gorm:"column:supplier_name;type:varchar(100)"`
	SupplierEmail    *string         `json:"supplier_email,omitempty" gorm:"column:supplier_email;type:varchar(100)"`
	SupplierPhone    *string         `json:"supplier_phone,omitempty" gorm:"column:supplier_phone;type:varchar(20)"`
	Location         *string         `json:"location,omitempty" gorm:"type:varchar(50)"`
	Active           bool            `json:"active" gorm:"not null;default:true;index:ix_inventory_items_low_stock,priority:1"`
	CreatedBy        string          `json:"created_by" gorm:"column:created_by;type:varchar(100);not null"`
	UpdatedBy        string          `json:"updated_by" gorm:"column:updated_by;type:varchar(100);not null"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`
}

func (Item) TableName() string { return "inventory_items" }

// IsLowStock reports whether the item is active and at or below its reorder threshold.
func (i Item) IsLowStock() bool {
	return i.Active && i.Quantity <= i.ReorderThreshold
}

func (i Item) IsOutOfStock() bool {
	return i.Active && i.Quantity == 0
}

// StockTotals is the aggregate row behind dashboard statistics.
type StockTotals struct {
	TotalItems int64           `gorm:"column:total_items"`
	LowStock   int64           `gorm:"column:low_stock"`
	OutOfStock int64           `gorm:"column:out_of_stock"`
	TotalUnits int64           `gorm:"column:total_units"`
	TotalValue decimal.Decimal `gorm:"column:total_value"`
}

type CategoryCount struct {
	Category string `json:"category" gorm:"column:category"`
	Slug     string `json:"slug" gorm:"-"`
	Count    int64  `json:"count" gorm:"column:item_count"`
}
