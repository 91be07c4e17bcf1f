package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateProductRequest struct {
	TenantID    snowflake.ID
	Code        string
	Name        string
	Description string
}

type Service interface {
	Create(ctx context.Context, req CreateProductRequest) (Product, error)
	GetByID(ctx context.Context, tenantID, id snowflake.ID) (Product, error)
	List(ctx context.Context, tenantID snowflake.ID) ([]Product, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidCode   = errors.New("invalid_code")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidID     = errors.New("invalid_id")
	ErrCodeExists    = errors.New("code_exists")
	ErrNotFound      = errors.New("product_not_found")
)
