package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/reserva/internal/activity/domain"
	"github.com/smallbiznis/reserva/internal/clock"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/reserva/internal/ledger/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type feedFixture struct {
	svc        domain.Service
	repo       ledgerdomain.Repository
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	tenantID   snowflake.ID
	customerID snowflake.ID
}

func setupFeed(t *testing.T) *feedFixture {
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

	if err := db.AutoMigrate(&ledgerdomain.PointsEntry{}, &ledgerdomain.HoldingEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC))
	repo := ledgerrepo.Provide()
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  fake,
		Ledger: repo,
	})

	return &feedFixture{
		svc:        svc,
		repo:       repo,
		db:         db,
		node:       node,
		clock:      fake,
		tenantID:   node.Generate(),
		customerID: node.Generate(),
	}
}

func (f *feedFixture) addPoints(t *testing.T, delta int64, reason string, at time.Time) {
	t.Helper()
	entry := &ledgerdomain.PointsEntry{
		ID:         f.node.Generate(),
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Delta:      delta,
		Reason:     reason,
		CreatedAt:  at,
	}
	if err := f.repo.AppendPoints(context.Background(), f.db, entry); err != nil {
		t.Fatalf("append points: %v", err)
	}
}

func (f *feedFixture) addHolding(t *testing.T, delta int64, reason, notes string, at time.Time) {
	t.Helper()
	entry := &ledgerdomain.HoldingEntry{
		ID:         f.node.Generate(),
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		ProductID:  f.node.Generate(),
		HoldingID:  f.node.Generate(),
		Delta:      delta,
		Reason:     reason,
		Notes:      notes,
		CreatedAt:  at,
	}
	if err := f.repo.AppendHolding(context.Background(), f.db, entry); err != nil {
		t.Fatalf("append holding: %v", err)
	}
}

func TestFeedMergesBothLedgersNewestFirst(t *testing.T) {
	f := setupFeed(t)
	now := f.clock.Now()

	f.addPoints(t, 100, "signup bonus", now.Add(-3*time.Hour))
	f.addHolding(t, 2, "initial grant", "", now.Add(-2*time.Hour))
	f.addPoints(t, -30, "redemption", now.Add(-1*time.Hour))

	resp, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
	})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if resp.Total != 3 || len(resp.Items) != 3 {
		t.Fatalf("expected 3 items, got total=%d len=%d", resp.Total, len(resp.Items))
	}

	wantKinds := []domain.Kind{domain.KindPoints, domain.KindHolding, domain.KindPoints}
	for i, kind := range wantKinds {
		if resp.Items[i].Kind != kind {
			t.Fatalf("item %d: expected kind %s, got %s", i, kind, resp.Items[i].Kind)
		}
	}
	if resp.Items[0].Delta != -30 {
		t.Fatalf("expected the redemption first, got delta %d", resp.Items[0].Delta)
	}

	// The feed is a pure read: a second call sees the same rows.
	again, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
	})
	if err != nil {
		t.Fatalf("second feed: %v", err)
	}
	if again.Total != resp.Total {
		t.Fatalf("expected stable total, got %d vs %d", again.Total, resp.Total)
	}
}

func TestFeedKindFilter(t *testing.T) {
	f := setupFeed(t)
	now := f.clock.Now()

	f.addPoints(t, 10, "purchase", now.Add(-2*time.Hour))
	f.addHolding(t, 1, "initial grant", "", now.Add(-1*time.Hour))

	resp, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Kind:       domain.KindHolding,
	})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Kind != domain.KindHolding {
		t.Fatalf("expected only holding items, got %+v", resp.Items)
	}

	if _, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Kind:       domain.Kind("bogus"),
	}); err != domain.ErrInvalidKind {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestFeedSearchMatchesReasonAndNotes(t *testing.T) {
	f := setupFeed(t)
	now := f.clock.Now()

	f.addPoints(t, 10, "Birthday Bonus", now.Add(-3*time.Hour))
	f.addHolding(t, 1, "initial grant", "flagged for birthday audit", now.Add(-2*time.Hour))
	f.addPoints(t, 5, "purchase", now.Add(-1*time.Hour))

	resp, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Search:     "BIRTHDAY",
	})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 matches across reason and notes, got %d", len(resp.Items))
	}
}

func TestFeedBucketFilterUsesClock(t *testing.T) {
	f := setupFeed(t)
	now := f.clock.Now()

	f.addPoints(t, 1, "old", now.AddDate(0, 0, -40))
	f.addPoints(t, 2, "recent", now.AddDate(0, 0, -3))
	f.addPoints(t, 3, "today", now.Add(-time.Hour))

	sevenDays, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Bucket:     domain.Bucket7d,
	})
	if err != nil {
		t.Fatalf("7d feed: %v", err)
	}
	if len(sevenDays.Items) != 2 {
		t.Fatalf("expected 2 items in the 7d bucket, got %d", len(sevenDays.Items))
	}

	today, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Bucket:     domain.BucketToday,
	})
	if err != nil {
		t.Fatalf("today feed: %v", err)
	}
	if len(today.Items) != 1 || today.Items[0].Reason != "today" {
		t.Fatalf("expected only today's item, got %+v", today.Items)
	}

	// Advancing the clock moves entries out of the window.
	f.clock.Advance(8 * 24 * time.Hour)
	later, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Bucket:     domain.Bucket7d,
	})
	if err != nil {
		t.Fatalf("later feed: %v", err)
	}
	if len(later.Items) != 0 {
		t.Fatalf("expected an empty 7d bucket after advancing the clock, got %d items", len(later.Items))
	}

	if _, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Bucket:     domain.Bucket("fortnight"),
	}); err != domain.ErrInvalidBucket {
		t.Fatalf("expected ErrInvalidBucket, got %v", err)
	}
}

func TestFeedOffsetAndLimit(t *testing.T) {
	f := setupFeed(t)
	now := f.clock.Now()

	for i := 0; i < 5; i++ {
		f.addPoints(t, int64(i+1), fmt.Sprintf("purchase %d", i), now.Add(-time.Duration(i)*time.Hour))
	}

	resp, err := f.svc.GetActivityFeed(context.Background(), domain.FeedRequest{
		TenantID:   f.tenantID,
		CustomerID: f.customerID,
		Limit:      2,
		Offset:     1,
	})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if resp.Total != 5 {
		t.Fatalf("expected total 5, got %d", resp.Total)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	// Newest first: offset 1 skips "purchase 0".
	if resp.Items[0].Delta != 2 || resp.Items[1].Delta != 3 {
		t.Fatalf("unexpected page, got deltas %d, %d", resp.Items[0].Delta, resp.Items[1].Delta)
	}
}
