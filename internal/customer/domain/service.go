package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
)

type CreateCustomerRequest struct {
	TenantID snowflake.ID
	Name     string
	Email    string
	Phone    string
}

type ListCustomerRequest struct {
	TenantID  snowflake.ID
	Name      string
	PageToken string
	PageSize  int32
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type Service interface {
	Create(ctx context.Context, req CreateCustomerRequest) (Customer, error)
	GetByID(ctx context.Context, tenantID, id snowflake.ID) (Customer, error)
	List(ctx context.Context, req ListCustomerRequest) (ListCustomerResponse, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("customer_not_found")
)
