package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Product struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID      `gorm:"column:tenant_id;not null;index:ux_products_tenant_code,priority:1" json:"tenant_id"`
	Code        string            `gorm:"type:text;not null;index:ux_products_tenant_code,priority:2" json:"code"`
	Name        string            `gorm:"type:text;not null" json:"name"`
	Description *string           `gorm:"type:text" json:"description,omitempty"`
	Active      bool              `gorm:"not null;default:true" json:"active"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Product) TableName() string { return "products" }
