package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Holding is the materialized per-customer product entitlement count.
// Quantity is a cached projection of the holding ledger: at all times
// quantity must equal the sum of the ledger deltas recorded against this
// holding (the initial grant included). Version increments on every
// quantity write and backs the optimistic concurrency check.
type Holding struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_holdings_tenant_customer_product,priority:1" json:"tenant_id"`
	CustomerID snowflake.ID `gorm:"column:customer_id;not null;uniqueIndex:ux_holdings_tenant_customer_product,priority:2" json:"customer_id"`
	ProductID  snowflake.ID `gorm:"column:product_id;not null;uniqueIndex:ux_holdings_tenant_customer_product,priority:3" json:"product_id"`
	Quantity   int64        `gorm:"not null" json:"quantity"`
	Version    int64        `gorm:"not null;default:0" json:"-"`
	Notes      string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Holding) TableName() string { return "customer_product_holdings" }
