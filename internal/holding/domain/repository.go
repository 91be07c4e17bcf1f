package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, holding *Holding) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Holding, error)
	FindByCustomerProduct(ctx context.Context, db *gorm.DB, tenantID, customerID, productID snowflake.ID) (*Holding, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID) ([]*Holding, error)

	// UpdateQuantityCAS writes the new quantity only if the row still
	// carries expectedVersion, bumping the version on success. It reports
	// whether the write happened; false means another writer got there
	// first and the caller should re-read and retry.
	UpdateQuantityCAS(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, newQuantity, expectedVersion int64) (bool, error)

	// ForceQuantity rewrites the materialized quantity unconditionally.
	// Reserved for reconciliation repair after a ledger rewrite.
	ForceQuantity(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, quantity int64) error

	Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error
}
