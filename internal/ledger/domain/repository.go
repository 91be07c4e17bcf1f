package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository is the append-only ledger store. Every method takes the gorm
// handle explicitly so services can run a group of calls inside one
// transaction.
type Repository interface {
	AppendPoints(ctx context.Context, db *gorm.DB, entry *PointsEntry) error
	ListPoints(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID, filter EntryFilter, page pagination.Pagination) ([]*PointsEntry, error)
	SumPointsDeltas(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID) (int64, error)

	AppendHolding(ctx context.Context, db *gorm.DB, entry *HoldingEntry) error
	ListHoldingEntries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter HoldingEntryFilter, page pagination.Pagination) ([]*HoldingEntry, error)
	SumHoldingDeltas(ctx context.Context, db *gorm.DB, tenantID, holdingID snowflake.ID) (int64, error)
	FindHoldingEntry(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) (*HoldingEntry, error)
	FindHoldingEntryByIdempotencyKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*HoldingEntry, error)
	FindLatestHoldingMatching(ctx context.Context, db *gorm.DB, tenantID, holdingID snowflake.ID, fragment string) (*HoldingEntry, error)

	// RewriteHoldingEntry is the single sanctioned exception to entry
	// immutability, reserved for the deprecated correction path. Callers
	// must re-verify the owning holding's reconciliation invariant.
	RewriteHoldingEntry(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID, reason string, deltaOverride *int64) error
	UpdateHoldingEntryNotes(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID, notes string) error
}
