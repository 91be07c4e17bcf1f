package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/reserva/internal/activity/domain"
	"github.com/smallbiznis/reserva/internal/clock"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// feedFetchLimit caps how many rows each source ledger contributes to one
// merged page.
const feedFetchLimit = 250

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Ledger ledgerdomain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	ledger ledgerdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("activity.service"),
		clock:  p.Clock,
		ledger: p.Ledger,
	}
}

func (s *Service) GetActivityFeed(ctx context.Context, req domain.FeedRequest) (domain.FeedResponse, error) {
	if req.TenantID == 0 {
		return domain.FeedResponse{}, domain.ErrInvalidTenant
	}
	if req.CustomerID == 0 {
		return domain.FeedResponse{}, domain.ErrInvalidCustomer
	}

	switch req.Kind {
	case "", domain.KindPoints, domain.KindHolding:
	default:
		return domain.FeedResponse{}, domain.ErrInvalidKind
	}

	createdFrom, err := s.bucketStart(req.Bucket)
	if err != nil {
		return domain.FeedResponse{}, err
	}

	page := pagination.Pagination{PageSize: feedFetchLimit}
	items := make([]domain.Item, 0, 64)

	if req.Kind == "" || req.Kind == domain.KindPoints {
		entries, err := s.ledger.ListPoints(ctx, s.db, req.TenantID, req.CustomerID, ledgerdomain.EntryFilter{
			CreatedFrom: createdFrom,
		}, page)
		if err != nil {
			return domain.FeedResponse{}, fmt.Errorf("list points entries: %w", err)
		}
		for _, entry := range entries {
			items = append(items, domain.Item{
				ID:        entry.ID,
				Kind:      domain.KindPoints,
				Delta:     entry.Delta,
				Reason:    entry.Reason,
				CreatedAt: entry.CreatedAt,
			})
		}
	}

	if req.Kind == "" || req.Kind == domain.KindHolding {
		entries, err := s.ledger.ListHoldingEntries(ctx, s.db, req.TenantID, ledgerdomain.HoldingEntryFilter{
			CustomerID:  req.CustomerID,
			CreatedFrom: createdFrom,
		}, page)
		if err != nil {
			return domain.FeedResponse{}, fmt.Errorf("list holding entries: %w", err)
		}
		for _, entry := range entries {
			items = append(items, domain.Item{
				ID:        entry.ID,
				Kind:      domain.KindHolding,
				ProductID: entry.ProductID,
				HoldingID: entry.HoldingID,
				Delta:     entry.Delta,
				Reason:    entry.Reason,
				Notes:     entry.Notes,
				CreatedAt: entry.CreatedAt,
			})
		}
	}

	if search := strings.ToLower(strings.TrimSpace(req.Search)); search != "" {
		filtered := items[:0]
		for _, item := range items {
			if strings.Contains(strings.ToLower(item.Reason), search) ||
				strings.Contains(strings.ToLower(item.Notes), search) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	items = items[offset:]

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit < len(items) {
		items = items[:limit]
	}

	return domain.FeedResponse{Items: items, Total: total}, nil
}

func (s *Service) bucketStart(bucket domain.Bucket) (*time.Time, error) {
	now := s.clock.Now()
	switch bucket {
	case "", domain.BucketAll:
		return nil, nil
	case domain.BucketToday:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return &start, nil
	case domain.Bucket7d:
		start := now.AddDate(0, 0, -7)
		return &start, nil
	case domain.Bucket30d:
		start := now.AddDate(0, 0, -30)
		return &start, nil
	case domain.Bucket90d:
		start := now.AddDate(0, 0, -90)
		return &start, nil
	default:
		return nil, domain.ErrInvalidBucket
	}
}
