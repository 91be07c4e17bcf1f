package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/internal/holding/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, holding *domain.Holding) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customer_product_holdings
		 (id, tenant_id, customer_id, product_id, quantity, version, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		holding.ID,
		holding.TenantID,
		holding.CustomerID,
		holding.ProductID,
		holding.Quantity,
		holding.Version,
		holding.Notes,
		holding.CreatedAt,
		holding.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Holding, error) {
	var holding domain.Holding
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, customer_id, product_id, quantity, version, notes, created_at, updated_at
		 FROM customer_product_holdings WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&holding).Error
	if err != nil {
		return nil, err
	}
	if holding.ID == 0 {
		return nil, nil
	}
	return &holding, nil
}

func (r *repo) FindByCustomerProduct(ctx context.Context, db *gorm.DB, tenantID, customerID, productID snowflake.ID) (*domain.Holding, error) {
	var holding domain.Holding
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, customer_id, product_id, quantity, version, notes, created_at, updated_at
		 FROM customer_product_holdings WHERE tenant_id = ? AND customer_id = ? AND product_id = ?`,
		tenantID,
		customerID,
		productID,
	).Scan(&holding).Error
	if err != nil {
		return nil, err
	}
	if holding.ID == 0 {
		return nil, nil
	}
	return &holding, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID) ([]*domain.Holding, error) {
	var holdings []*domain.Holding
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, customer_id, product_id, quantity, version, notes, created_at, updated_at
		 FROM customer_product_holdings
		 WHERE tenant_id = ? AND customer_id = ?
		 ORDER BY created_at DESC, id DESC`,
		tenantID,
		customerID,
	).Scan(&holdings).Error
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

func (r *repo) UpdateQuantityCAS(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, newQuantity, expectedVersion int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE customer_product_holdings
		 SET quantity = ?, version = version + 1, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND version = ?`,
		newQuantity,
		time.Now().UTC(),
		tenantID,
		id,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ForceQuantity(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, quantity int64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE customer_product_holdings
		 SET quantity = ?, version = version + 1, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		quantity,
		time.Now().UTC(),
		tenantID,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM customer_product_holdings WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
