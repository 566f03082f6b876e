package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type ChangeType string

const (
	ChangeTypeStockIn      ChangeType = "STOCK_IN"
	ChangeTypeStockOut     ChangeType = "STOCK_OUT"
	ChangeTypeAdjustment   ChangeType = "ADJUSTMENT"
	ChangeTypeInitialStock ChangeType = "INITIAL_STOCK"
	ChangeTypeDamaged      ChangeType = "DAMAGED"
	ChangeTypeExpired      ChangeType = "EXPIRED"
	ChangeTypeSold         ChangeType = "SOLD"
	ChangeTypeReturned     ChangeType = "RETURNED"
)

var changeTypes = []ChangeType{
	ChangeTypeStockIn,
	ChangeTypeStockOut,
	ChangeTypeAdjustment,
	ChangeTypeInitialStock,
	ChangeTypeDamaged,
	ChangeTypeExpired,
	ChangeTypeSold,
	ChangeTypeReturned,
}

func ChangeTypes() []ChangeType {
	out := make([]ChangeType, len(changeTypes))
	copy(out, changeTypes)
	return out
}

func (t ChangeType) Valid() bool {
	for _, known := range changeTypes {
		if t == known {
			return true
		}
	}
	return false
}

func ParseChangeType(raw string) (ChangeType, error) {
	t := ChangeType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", ErrInvalidChangeType
	}
	return t, nil
}

// ChangeRecord is one immutable quantity transition. Rows are only ever inserted.
type ChangeRecord struct {
	ID          int64             `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	ItemID      int64             `json:"item_id,string" gorm:"column:item_id;not null;index:ix_stock_change_logs_item_created,priority:1"`
	OldQuantity int               `json:"old_quantity" gorm:"column:old_quantity;not null"`
	NewQuantity int               `json:"new_quantity" gorm:"column:new_quantity;not null"`
	Delta       int               `json:"delta" gorm:"not null"`
	ChangeType  ChangeType        `json:"change_type" gorm:"column:change_type;type:varchar(20);not null;index"`
	Reason      *string           `json:"reason,omitempty" gorm:"type:varchar(500)"`
	ChangedBy   string            `json:"changed_by" gorm:"column:changed_by;type:varchar(100);not null;index"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;index:ix_stock_change_logs_item_created,priority:2"`
}

func (ChangeRecord) TableName() string { return "stock_change_logs" }

// NewChangeRecord derives the delta from the two quantities so it can never disagree with them.
func NewChangeRecord(id, itemID int64, oldQuantity, newQuantity int, changeType ChangeType, reason *string, actor string, at time.Time) ChangeRecord {
	return ChangeRecord{
		ID:          id,
		ItemID:      itemID,
		OldQuantity: oldQuantity,
		NewQuantity: newQuantity,
		Delta:       newQuantity - oldQuantity,
		ChangeType:  changeType,
		Reason:      reason,
		ChangedBy:   actor,
		CreatedAt:   at.UTC(),
	}
}

// ActivityEntry is a change record joined with the item it belongs to.
type ActivityEntry struct {
	ChangeRecord
	ItemSKU  string `json:"item_sku" gorm:"column:item_sku"`
	ItemName string `json:"item_name" gorm:"column:item_name"`
}

// QuantitySnapshot pairs an item's stored quantity with the newest logged quantity.
type QuantitySnapshot struct {
	ItemID         int64  `gorm:"column:item_id"`
	SKU            string `gorm:"column:sku"`
	Quantity       int    `gorm:"column:quantity"`
	LoggedQuantity *int   `gorm:"column:logged_quantity"`
	LastRecordID   *int64 `gorm:"column:last_record_id"`
}

type DiscrepancyKind string

const (
	DiscrepancyMissingHistory   DiscrepancyKind = "missing_history"
	DiscrepancyQuantityMismatch DiscrepancyKind = "quantity_mismatch"
)

type Discrepancy struct {
	ItemID         int64           `json:"item_id,string"`
	SKU            string          `json:"sku"`
	Kind           DiscrepancyKind `json:"kind"`
	Quantity       int             `json:"quantity"`
	LoggedQuantity *int            `json:"logged_quantity,omitempty"`
}
