package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryKind distinguishes the two ledgers the subsystem keeps.
type EntryKind string

const (
	EntryKindPoints  EntryKind = "points"
	EntryKindHolding EntryKind = "holding"
)

// DefaultHoldingReason is stamped on holding entries appended without a memo.
const DefaultHoldingReason = "quantity adjustment"

// PointsEntry is an immutable signed-delta audit record for a customer's
// loyalty points account. The balance is never stored; it is always the sum
// of these rows.
type PointsEntry struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID `gorm:"column:tenant_id;not null;index:ix_points_ledger_tenant_customer,priority:1" json:"tenant_id"`
	CustomerID snowflake.ID `gorm:"column:customer_id;not null;index:ix_points_ledger_tenant_customer,priority:2" json:"customer_id"`
	Delta      int64        `gorm:"not null" json:"delta"`
	Reason     string       `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PointsEntry) TableName() string { return "points_ledger" }

// HoldingEntry is an immutable signed-delta audit record for a customer's
// product holding. Notes is the only field that may change after creation;
// Reason and Delta may additionally be rewritten through the deprecated
// text-match correction path.
type HoldingEntry struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	CustomerID     snowflake.ID `gorm:"column:customer_id;not null;index" json:"customer_id"`
	ProductID      snowflake.ID `gorm:"column:product_id;not null" json:"product_id"`
	HoldingID      snowflake.ID `gorm:"column:holding_id;not null;index" json:"holding_id"`
	Delta          int64        `gorm:"not null" json:"delta"`
	Reason         string       `gorm:"type:text;not null" json:"reason"`
	Notes          string       `gorm:"type:text" json:"notes,omitempty"`
	IdempotencyKey *string      `gorm:"column:idempotency_key;type:text" json:"-"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (HoldingEntry) TableName() string { return "customer_product_ledger" }

// EntryFilter narrows ledger listings by creation time.
type EntryFilter struct {
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// HoldingEntryFilter narrows holding ledger listings. CustomerID or
// HoldingID must be set; both zero means the query is unscoped and rejected.
type HoldingEntryFilter struct {
	CustomerID  snowflake.ID
	HoldingID   snowflake.ID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
