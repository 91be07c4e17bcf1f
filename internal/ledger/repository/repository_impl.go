package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/internal/ledger/domain"
	"github.com/smallbiznis/reserva/pkg/db/option"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) AppendPoints(ctx context.Context, db *gorm.DB, entry *domain.PointsEntry) error {
	if entry.TenantID == 0 {
		return domain.ErrInvalidTenant
	}
	if entry.CustomerID == 0 {
		return domain.ErrInvalidCustomer
	}
	if entry.Delta == 0 {
		return domain.ErrZeroDelta
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO points_ledger (id, tenant_id, customer_id, delta, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.CustomerID,
		entry.Delta,
		entry.Reason,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListPoints(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID, filter domain.EntryFilter, page pagination.Pagination) ([]*domain.PointsEntry, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if customerID == 0 {
		return nil, domain.ErrInvalidCustomer
	}

	var entries []*domain.PointsEntry
	stmt := db.WithContext(ctx).
		Model(&domain.PointsEntry{}).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) SumPointsDeltas(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID) (int64, error) {
	if tenantID == 0 {
		return 0, domain.ErrInvalidTenant
	}
	if customerID == 0 {
		return 0, domain.ErrInvalidCustomer
	}

	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(delta), 0) FROM points_ledger WHERE tenant_id = ? AND customer_id = ?`,
		tenantID,
		customerID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repo) AppendHolding(ctx context.Context, db *gorm.DB, entry *domain.HoldingEntry) error {
	if entry.TenantID == 0 {
		return domain.ErrInvalidTenant
	}
	if entry.CustomerID == 0 {
		return domain.ErrInvalidCustomer
	}
	if entry.HoldingID == 0 {
		return domain.ErrInvalidHolding
	}
	if entry.Delta == 0 {
		return domain.ErrZeroDelta
	}

	reason := strings.TrimSpace(entry.Reason)
	if reason == "" {
		reason = domain.DefaultHoldingReason
		entry.Reason = reason
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO customer_product_ledger
		 (id, tenant_id, customer_id, product_id, holding_id, delta, reason, notes, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.CustomerID,
		entry.ProductID,
		entry.HoldingID,
		entry.Delta,
		entry.Reason,
		entry.Notes,
		entry.IdempotencyKey,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListHoldingEntries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.HoldingEntryFilter, page pagination.Pagination) ([]*domain.HoldingEntry, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if filter.CustomerID == 0 && filter.HoldingID == 0 {
		return nil, domain.ErrUnscopedQuery
	}

	var entries []*domain.HoldingEntry
	stmt := db.WithContext(ctx).
		Model(&domain.HoldingEntry{}).
		Where("tenant_id = ?", tenantID)
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.HoldingID != 0 {
		stmt = stmt.Where("holding_id = ?", filter.HoldingID)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) SumHoldingDeltas(ctx context.Context, db *gorm.DB, tenantID, holdingID snowflake.ID) (int64, error) {
	if tenantID == 0 {
		return 0, domain.ErrInvalidTenant
	}
	if holdingID == 0 {
		return 0, domain.ErrInvalidHolding
	}

	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(delta), 0) FROM customer_product_ledger WHERE tenant_id = ? AND holding_id = ?`,
		tenantID,
		holdingID,
	).Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *repo) FindHoldingEntry(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) (*domain.HoldingEntry, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	var entry domain.HoldingEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, customer_id, product_id, holding_id, delta, reason, notes, idempotency_key, created_at
		 FROM customer_product_ledger WHERE tenant_id = ? AND id = ?`,
		tenantID,
		entryID,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) FindHoldingEntryByIdempotencyKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*domain.HoldingEntry, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}

	var entry domain.HoldingEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, customer_id, product_id, holding_id, delta, reason, notes, idempotency_key, created_at
		 FROM customer_product_ledger WHERE tenant_id = ? AND idempotency_key = ?`,
		tenantID,
		key,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) FindLatestHoldingMatching(ctx context.Context, db *gorm.DB, tenantID, holdingID snowflake.ID, fragment string) (*domain.HoldingEntry, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if holdingID == 0 {
		return nil, domain.ErrInvalidHolding
	}

	// The match must be case-sensitive and LIKE is not on common MySQL
	// collations, so order in SQL and match in Go. The path is deprecated
	// and holdings carry few entries, so the full scan is acceptable.
	var entries []*domain.HoldingEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, customer_id, product_id, holding_id, delta, reason, notes, idempotency_key, created_at
		 FROM customer_product_ledger
		 WHERE tenant_id = ? AND holding_id = ?
		 ORDER BY created_at DESC, id DESC`,
		tenantID,
		holdingID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if strings.Contains(entry.Reason, fragment) {
			return entry, nil
		}
	}
	return nil, nil
}

func (r *repo) RewriteHoldingEntry(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID, reason string, deltaOverride *int64) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}

	var result *gorm.DB
	if deltaOverride != nil {
		if *deltaOverride == 0 {
			return domain.ErrZeroDelta
		}
		result = db.WithContext(ctx).Exec(
			`UPDATE customer_product_ledger SET reason = ?, delta = ? WHERE tenant_id = ? AND id = ?`,
			reason,
			*deltaOverride,
			tenantID,
			entryID,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE customer_product_ledger SET reason = ? WHERE tenant_id = ? AND id = ?`,
			reason,
			tenantID,
			entryID,
		)
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) UpdateHoldingEntryNotes(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID, notes string) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE customer_product_ledger SET notes = ? WHERE tenant_id = ? AND id = ?`,
		notes,
		tenantID,
		entryID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
