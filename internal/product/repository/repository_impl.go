package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, tenant_id, code, name, description, active, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.TenantID,
		product.Code,
		product.Name,
		product.Description,
		product.Active,
		product.Metadata,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, description, active, metadata, created_at, updated_at
		 FROM products WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, description, active, metadata, created_at, updated_at
		 FROM products WHERE tenant_id = ? AND code = ?`,
		tenantID,
		code,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*domain.Product, error) {
	var items []*domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, description, active, metadata, created_at, updated_at
		 FROM products WHERE tenant_id = ? ORDER BY created_at ASC`,
		tenantID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
