package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Product, error)
	FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*Product, error)
}
