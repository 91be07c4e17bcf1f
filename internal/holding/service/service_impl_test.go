package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/reserva/internal/config"
	"github.com/smallbiznis/reserva/internal/holding/domain"
	holdingrepo "github.com/smallbiznis/reserva/internal/holding/repository"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/reserva/internal/ledger/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupHoldingService(t *testing.T, node *snowflake.Node) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	_ = db.Exec("PRAGMA journal_mode = WAL").Error

	if err := db.AutoMigrate(&domain.Holding{}, &ledgerdomain.HoldingEntry{}, &ledgerdomain.PointsEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_cpl_tenant_idempotency_key
		ON customer_product_ledger (tenant_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL`).Error; err != nil {
		t.Fatalf("create idempotency index: %v", err)
	}

	svc := New(Params{
		Cfg:    config.Config{VerifyReconciliation: true},
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   holdingrepo.Provide(),
		Ledger: ledgerrepo.Provide(),
	})
	return svc, db
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func countHoldingEntries(t *testing.T, db *gorm.DB, holdingID snowflake.ID) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM customer_product_ledger WHERE holding_id = ?`, holdingID).Scan(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return count
}

func TestGrantCreatesHoldingAndEntry(t *testing.T) {
	node := mustNode(t)
	svc, db := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	customerID := node.Generate()
	productID := node.Generate()

	resp, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   3,
		Reason:     "welcome bundle",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if resp.Holding.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", resp.Holding.Quantity)
	}
	if resp.Entry.Delta != 3 {
		t.Fatalf("expected entry delta 3, got %d", resp.Entry.Delta)
	}
	if resp.Entry.Reason != "initial grant: welcome bundle" {
		t.Fatalf("unexpected grant reason %q", resp.Entry.Reason)
	}
	if got := countHoldingEntries(t, db, resp.Holding.ID); got != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", got)
	}

	fetched, err := svc.Get(ctx, tenantID, resp.Holding.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Quantity != 3 {
		t.Fatalf("expected fetched quantity 3, got %d", fetched.Quantity)
	}
}

func TestGrantRejectsExistingPair(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupHoldingService(t, node)
	ctx := context.Background()

	req := domain.GrantRequest{
		TenantID:   node.Generate(),
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   1,
	}
	if _, err := svc.Grant(ctx, req); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if _, err := svc.Grant(ctx, req); !errors.Is(err, domain.ErrHoldingExists) {
		t.Fatalf("expected ErrHoldingExists, got %v", err)
	}
}

func TestAdjustClampsAtZeroAndRecordsAppliedDelta(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   3,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	resp, err := svc.Adjust(ctx, domain.AdjustRequest{
		TenantID:  tenantID,
		HoldingID: grant.Holding.ID,
		Amount:    -1000,
		Reason:    "bulk revoke",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if resp.Holding.Quantity != 0 {
		t.Fatalf("expected quantity clamped to 0, got %d", resp.Holding.Quantity)
	}
	if resp.Applied != -3 {
		t.Fatalf("expected applied delta -3, got %d", resp.Applied)
	}
	if resp.Entry == nil || resp.Entry.Delta != -3 {
		t.Fatalf("expected ledger entry with delta -3, got %+v", resp.Entry)
	}
}

func TestAdjustAtZeroIsNoOp(t *testing.T) {
	node := mustNode(t)
	svc, db := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   2,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if _, err := svc.Adjust(ctx, domain.AdjustRequest{
		TenantID:  tenantID,
		HoldingID: grant.Holding.ID,
		Amount:    -2,
	}); err != nil {
		t.Fatalf("adjust to zero: %v", err)
	}

	resp, err := svc.Adjust(ctx, domain.AdjustRequest{
		TenantID:  tenantID,
		HoldingID: grant.Holding.ID,
		Amount:    -5,
	})
	if err != nil {
		t.Fatalf("adjust below zero: %v", err)
	}
	if resp.Entry != nil {
		t.Fatalf("expected no ledger entry for a fully clamped adjust, got %+v", resp.Entry)
	}
	if resp.Applied != 0 {
		t.Fatalf("expected applied delta 0, got %d", resp.Applied)
	}
	if got := countHoldingEntries(t, db, grant.Holding.ID); got != 2 {
		t.Fatalf("expected 2 ledger entries (grant + one adjust), got %d", got)
	}
}

func TestConcurrentAdjustsBothLand(t *testing.T) {
	node := mustNode(t)
	svc, db := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(ctx, domain.AdjustRequest{
				TenantID:  tenantID,
				HoldingID: grant.Holding.ID,
				Amount:    1,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent adjust: %v", err)
		}
	}

	holding, err := svc.Get(ctx, tenantID, grant.Holding.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if holding.Quantity != 3 {
		t.Fatalf("expected quantity 3 after two +1 adjusts on 1, got %d", holding.Quantity)
	}
	if got := countHoldingEntries(t, db, grant.Holding.ID); got != 3 {
		t.Fatalf("expected 3 ledger entries (grant + 2 adjusts), got %d", got)
	}
}

func TestAdjustIdempotentReplay(t *testing.T) {
	node := mustNode(t)
	svc, db := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   5,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	req := domain.AdjustRequest{
		TenantID:       tenantID,
		HoldingID:      grant.Holding.ID,
		Amount:         -2,
		IdempotencyKey: "adjust-key-1",
	}

	first, err := svc.Adjust(ctx, req)
	if err != nil {
		t.Fatalf("first adjust: %v", err)
	}
	second, err := svc.Adjust(ctx, req)
	if err != nil {
		t.Fatalf("second adjust: %v", err)
	}

	if !second.Replay {
		t.Fatal("expected second adjust to be a replay")
	}
	if first.Entry == nil || second.Entry == nil || first.Entry.ID != second.Entry.ID {
		t.Fatalf("expected the same ledger entry on replay, got %+v vs %+v", first.Entry, second.Entry)
	}
	if second.Holding.Quantity != 3 {
		t.Fatalf("expected replay to report quantity 3, got %d", second.Holding.Quantity)
	}
	if got := countHoldingEntries(t, db, grant.Holding.ID); got != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", got)
	}
}

func TestGrantIdempotentReplay(t *testing.T) {
	node := mustNode(t)
	svc, db := setupHoldingService(t, node)
	ctx := context.Background()

	req := domain.GrantRequest{
		TenantID:       node.Generate(),
		CustomerID:     node.Generate(),
		ProductID:      node.Generate(),
		Quantity:       4,
		IdempotencyKey: "grant-key-1",
	}

	first, err := svc.Grant(ctx, req)
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	second, err := svc.Grant(ctx, req)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}

	if !second.Replay {
		t.Fatal("expected second grant to be a replay")
	}
	if first.Entry.ID != second.Entry.ID {
		t.Fatalf("expected the same ledger entry on replay, got %s vs %s", first.Entry.ID, second.Entry.ID)
	}
	if got := countHoldingEntries(t, db, first.Holding.ID); got != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", got)
	}
}

func TestAdjustRejectsKeyReusedOnAnotherHolding(t *testing.T) {
	node := mustNode(t)
	svc, db := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	customerID := node.Generate()
	first, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: customerID,
		ProductID:  node.Generate(),
		Quantity:   5,
	})
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	second, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: customerID,
		ProductID:  node.Generate(),
		Quantity:   3,
	})
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}

	if _, err := svc.Adjust(ctx, domain.AdjustRequest{
		TenantID:       tenantID,
		HoldingID:      first.Holding.ID,
		Amount:         -1,
		IdempotencyKey: "shared-key",
	}); err != nil {
		t.Fatalf("adjust first holding: %v", err)
	}

	_, err = svc.Adjust(ctx, domain.AdjustRequest{
		TenantID:       tenantID,
		HoldingID:      second.Holding.ID,
		Amount:         -1,
		IdempotencyKey: "shared-key",
	})
	if !errors.Is(err, domain.ErrKeyReused) {
		t.Fatalf("expected ErrKeyReused, got %v", err)
	}
	if got := countHoldingEntries(t, db, second.Holding.ID); got != 1 {
		t.Fatalf("expected the second holding to keep 1 ledger entry, got %d", got)
	}

	updated, err := svc.Get(ctx, tenantID, second.Holding.ID)
	if err != nil {
		t.Fatalf("get second holding: %v", err)
	}
	if updated.Quantity != 3 {
		t.Fatalf("expected second holding quantity 3, got %d", updated.Quantity)
	}
}

func TestGrantRejectsKeyReusedOnAnotherPair(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	customerID := node.Generate()
	if _, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:       tenantID,
		CustomerID:     customerID,
		ProductID:      node.Generate(),
		Quantity:       5,
		IdempotencyKey: "grant-shared-key",
	}); err != nil {
		t.Fatalf("first grant: %v", err)
	}

	_, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:       tenantID,
		CustomerID:     customerID,
		ProductID:      node.Generate(),
		Quantity:       2,
		IdempotencyKey: "grant-shared-key",
	})
	if !errors.Is(err, domain.ErrKeyReused) {
		t.Fatalf("expected ErrKeyReused, got %v", err)
	}
}

type casConflictRepo struct {
	domain.Repository
	holding  domain.Holding
	attempts int
}

func (r *casConflictRepo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Holding, error) {
	h := r.holding
	return &h, nil
}

func (r *casConflictRepo) UpdateQuantityCAS(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, newQuantity, expectedVersion int64) (bool, error) {
	r.attempts++
	return false, nil
}

func TestAdjustGivesUpAfterRepeatedVersionConflicts(t *testing.T) {
	node := mustNode(t)
	_, db := setupHoldingService(t, node)

	tenantID := node.Generate()
	repo := &casConflictRepo{
		holding: domain.Holding{
			ID:         node.Generate(),
			TenantID:   tenantID,
			CustomerID: node.Generate(),
			ProductID:  node.Generate(),
			Quantity:   10,
		},
	}

	svc := New(Params{
		Cfg:    config.Config{},
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repo,
		Ledger: ledgerrepo.Provide(),
	})

	_, err := svc.Adjust(context.Background(), domain.AdjustRequest{
		TenantID:  tenantID,
		HoldingID: repo.holding.ID,
		Amount:    1,
	})
	if !errors.Is(err, domain.ErrConsistency) {
		t.Fatalf("expected ErrConsistency, got %v", err)
	}
	if repo.attempts != maxAdjustRetries {
		t.Fatalf("expected %d CAS attempts, got %d", maxAdjustRetries, repo.attempts)
	}
}

func TestRemoveLeavesLedgerEntries(t *testing.T) {
	node := mustNode(t)
	svc, db := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   2,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := svc.Remove(ctx, tenantID, grant.Holding.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := svc.Get(ctx, tenantID, grant.Holding.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	if got := countHoldingEntries(t, db, grant.Holding.ID); got != 1 {
		t.Fatalf("expected ledger entry to survive the remove, got %d entries", got)
	}
}

func TestAnnotateEntryOnlyTouchesNotes(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   2,
		Reason:     "seasonal promo",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := svc.AnnotateEntry(ctx, tenantID, grant.Entry.ID, "verified against invoice 4471"); err != nil {
		t.Fatalf("annotate: %v", err)
	}

	entries, err := svc.ListEntries(ctx, domain.ListEntriesRequest{
		TenantID:  tenantID,
		HoldingID: grant.Holding.ID,
	})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries.Entries))
	}
	entry := entries.Entries[0]
	if entry.Notes != "verified against invoice 4471" {
		t.Fatalf("unexpected notes %q", entry.Notes)
	}
	if entry.Reason != "initial grant: seasonal promo" || entry.Delta != 2 {
		t.Fatalf("annotate must not touch reason or delta, got %+v", entry)
	}

	if err := svc.AnnotateEntry(ctx, tenantID, node.Generate(), "nope"); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for unknown entry, got %v", err)
	}
}

func TestCorrectByTextMatchMissIsNoOp(t *testing.T) {
	node := mustNode(t)
	svc, db := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   2,
		Reason:     "promo",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	entry, err := svc.CorrectByTextMatch(ctx, domain.CorrectRequest{
		TenantID:    tenantID,
		HoldingID:   grant.Holding.ID,
		Fragment:    "no such text",
		Replacement: "whatever",
	})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry on miss, got %+v", entry)
	}
	if got := countHoldingEntries(t, db, grant.Holding.ID); got != 1 {
		t.Fatalf("miss must not touch the ledger, got %d entries", got)
	}
}

func TestCorrectByTextMatchIsCaseSensitiveAndPicksLatest(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   5,
		Reason:     "Promo batch 7",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := svc.Adjust(ctx, domain.AdjustRequest{
		TenantID:  tenantID,
		HoldingID: grant.Holding.ID,
		Amount:    -1,
		Reason:    "promo batch 7 return",
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	// Lowercase fragment must skip the grant entry and hit the adjust.
	entry, err := svc.CorrectByTextMatch(ctx, domain.CorrectRequest{
		TenantID:    tenantID,
		HoldingID:   grant.Holding.ID,
		Fragment:    "promo batch 7",
		Replacement: "promo batch 8",
	})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a corrected entry")
	}
	if entry.Reason != "promo batch 8 return" {
		t.Fatalf("unexpected corrected reason %q", entry.Reason)
	}
	if entry.Delta != -1 {
		t.Fatalf("correction without override must keep the delta, got %d", entry.Delta)
	}
}

func TestCorrectByTextMatchDeltaOverrideRepairsQuantity(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   5,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := svc.Adjust(ctx, domain.AdjustRequest{
		TenantID:  tenantID,
		HoldingID: grant.Holding.ID,
		Amount:    -2,
		Reason:    "damaged stock",
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	override := int64(-1)
	entry, err := svc.CorrectByTextMatch(ctx, domain.CorrectRequest{
		TenantID:      tenantID,
		HoldingID:     grant.Holding.ID,
		Fragment:      "damaged stock",
		Replacement:   "damaged stock (recounted)",
		DeltaOverride: &override,
	})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if entry == nil || entry.Delta != -1 {
		t.Fatalf("expected overridden delta -1, got %+v", entry)
	}

	// 5 - 1 = 4: the materialized quantity must follow the rewritten ledger.
	holding, err := svc.Get(ctx, tenantID, grant.Holding.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if holding.Quantity != 4 {
		t.Fatalf("expected repaired quantity 4, got %d", holding.Quantity)
	}
}

func TestListEntriesPagination(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupHoldingService(t, node)
	ctx := context.Background()

	tenantID := node.Generate()
	grant, err := svc.Grant(ctx, domain.GrantRequest{
		TenantID:   tenantID,
		CustomerID: node.Generate(),
		ProductID:  node.Generate(),
		Quantity:   10,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := svc.Adjust(ctx, domain.AdjustRequest{
			TenantID:  tenantID,
			HoldingID: grant.Holding.ID,
			Amount:    1,
			Reason:    fmt.Sprintf("restock %d", i),
		}); err != nil {
			t.Fatalf("adjust %d: %v", i, err)
		}
	}

	page, err := svc.ListEntries(ctx, domain.ListEntriesRequest{
		TenantID:  tenantID,
		HoldingID: grant.Holding.ID,
		PageSize:  3,
	})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(page.Entries) != 3 {
		t.Fatalf("expected 3 entries on the first page, got %d", len(page.Entries))
	}
	if !page.HasMore {
		t.Fatal("expected more pages")
	}

	rest, err := svc.ListEntries(ctx, domain.ListEntriesRequest{
		TenantID:  tenantID,
		HoldingID: grant.Holding.ID,
		PageSize:  3,
		PageToken: page.NextPageToken,
	})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest.Entries) != 2 {
		t.Fatalf("expected 2 entries on the second page, got %d", len(rest.Entries))
	}
	if rest.HasMore {
		t.Fatal("expected no further pages")
	}
}
