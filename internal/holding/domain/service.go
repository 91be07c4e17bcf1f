package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
)

type GrantRequest struct {
	TenantID       snowflake.ID
	CustomerID     snowflake.ID
	ProductID      snowflake.ID
	Quantity       int64
	Reason         string
	IdempotencyKey string
}

type AdjustRequest struct {
	TenantID       snowflake.ID
	HoldingID      snowflake.ID
	Amount         int64 // signed; the applied delta may differ after clamping
	Reason         string
	IdempotencyKey string
}

type AdjustResponse struct {
	Holding Holding                    `json:"holding"`
	Entry   *ledgerdomain.HoldingEntry `json:"entry,omitempty"` // nil when clamping absorbed the whole adjustment
	Applied int64                      `json:"applied_delta"`
	Replay  bool                       `json:"-"`
}

type GrantResponse struct {
	Holding Holding                   `json:"holding"`
	Entry   ledgerdomain.HoldingEntry `json:"entry"`
	Replay  bool                      `json:"-"`
}

type CorrectRequest struct {
	TenantID      snowflake.ID
	HoldingID     snowflake.ID
	Fragment      string
	Replacement   string
	DeltaOverride *int64
}

type ListEntriesRequest struct {
	TenantID   snowflake.ID
	CustomerID snowflake.ID
	HoldingID  snowflake.ID
	PageToken  string
	PageSize   int32
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []ledgerdomain.HoldingEntry `json:"entries"`
}

// Service maintains materialized product entitlement counts with a full
// audit trail. Every quantity change and its ledger entry commit in one
// transaction; a version check on the holding row turns lost updates into
// retries instead of silent drift.
type Service interface {
	Grant(ctx context.Context, req GrantRequest) (GrantResponse, error)
	Adjust(ctx context.Context, req AdjustRequest) (AdjustResponse, error)
	Get(ctx context.Context, tenantID, holdingID snowflake.ID) (Holding, error)
	ListByCustomer(ctx context.Context, tenantID, customerID snowflake.ID) ([]Holding, error)
	Remove(ctx context.Context, tenantID, holdingID snowflake.ID) error

	ListEntries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	AnnotateEntry(ctx context.Context, tenantID, entryID snowflake.ID, notes string) error

	// CorrectByTextMatch is the deprecated compatibility shim. It rewrites
	// the most recent entry whose reason contains the fragment and returns
	// (nil, nil) when nothing matches.
	CorrectByTextMatch(ctx context.Context, req CorrectRequest) (*ledgerdomain.HoldingEntry, error)
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidProduct  = errors.New("invalid_product")
	ErrInvalidHolding  = errors.New("invalid_holding")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrHoldingExists   = errors.New("holding_exists")
	ErrNotFound        = errors.New("holding_not_found")
	ErrEntryNotFound   = errors.New("entry_not_found")
	ErrConsistency     = errors.New("consistency_conflict")
	ErrKeyReused       = errors.New("idempotency_key_reused")
	ErrInvalidFragment = errors.New("invalid_fragment")
)
