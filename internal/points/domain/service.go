package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
)

type GetBalanceRequest struct {
	TenantID   snowflake.ID
	CustomerID snowflake.ID
}

type GetStatementRequest struct {
	TenantID    snowflake.ID
	CustomerID  snowflake.ID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	PageToken   string
	PageSize    int32
}

type StatementResponse struct {
	pagination.PageInfo
	Balance int64                      `json:"balance"`
	Entries []ledgerdomain.PointsEntry `json:"entries"`
}

type AppendRequest struct {
	TenantID   snowflake.ID
	CustomerID snowflake.ID
	Amount     int64
	Reason     string
}

// Service is the points account projection. The balance is always derived
// from the ledger; deposits and withdrawals only ever append.
type Service interface {
	// GetBalance returns the scalar balance without materializing entries.
	GetBalance(ctx context.Context, req GetBalanceRequest) (int64, error)
	// GetStatement returns the balance together with a page of entries.
	GetStatement(ctx context.Context, req GetStatementRequest) (StatementResponse, error)
	Deposit(ctx context.Context, req AppendRequest) (ledgerdomain.PointsEntry, error)
	// Withdraw may drive the balance negative; retroactive corrections
	// depend on that, so it is not guarded.
	Withdraw(ctx context.Context, req AppendRequest) (ledgerdomain.PointsEntry, error)
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidAmount   = errors.New("invalid_amount")
)
