package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is the business account under which all customer, holding and
// ledger data is scoped.
type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Tenant) TableName() string { return "tenants" }
