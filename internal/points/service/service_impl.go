package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/internal/cache"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/reserva/internal/observability/metrics"
	"github.com/smallbiznis/reserva/internal/points/domain"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Ledger     ledgerdomain.Repository
	Cache      cache.BalanceCache  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	ledger     ledgerdomain.Repository
	cache      cache.BalanceCache
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("points.service"),
		genID:      p.GenID,
		ledger:     p.Ledger,
		cache:      p.Cache,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetBalance(ctx context.Context, req domain.GetBalanceRequest) (int64, error) {
	if req.TenantID == 0 {
		return 0, domain.ErrInvalidTenant
	}
	if req.CustomerID == 0 {
		return 0, domain.ErrInvalidCustomer
	}

	if s.cache != nil {
		balance, ok, err := s.cache.Get(ctx, req.TenantID, req.CustomerID)
		if err != nil {
			s.log.Warn("balance cache read failed", zap.Error(err))
		} else if ok {
			s.obsMetrics.RecordBalanceCache(ctx, true)
			return balance, nil
		}
		s.obsMetrics.RecordBalanceCache(ctx, false)
	}

	balance, err := s.ledger.SumPointsDeltas(ctx, s.db, req.TenantID, req.CustomerID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, req.TenantID, req.CustomerID, balance); err != nil {
			s.log.Warn("balance cache write failed", zap.Error(err))
		}
	}

	return balance, nil
}

func (s *Service) GetStatement(ctx context.Context, req domain.GetStatementRequest) (domain.StatementResponse, error) {
	if req.TenantID == 0 {
		return domain.StatementResponse{}, domain.ErrInvalidTenant
	}
	if req.CustomerID == 0 {
		return domain.StatementResponse{}, domain.ErrInvalidCustomer
	}

	balance, err := s.ledger.SumPointsDeltas(ctx, s.db, req.TenantID, req.CustomerID)
	if err != nil {
		return domain.StatementResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.ledger.ListPoints(ctx, s.db, req.TenantID, req.CustomerID, ledgerdomain.EntryFilter{
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.StatementResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(entry *ledgerdomain.PointsEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        entry.ID.String(),
			CreatedAt: entry.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	entries := make([]ledgerdomain.PointsEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := domain.StatementResponse{Balance: balance, Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) Deposit(ctx context.Context, req domain.AppendRequest) (ledgerdomain.PointsEntry, error) {
	return s.append(ctx, req, +1)
}

func (s *Service) Withdraw(ctx context.Context, req domain.AppendRequest) (ledgerdomain.PointsEntry, error) {
	return s.append(ctx, req, -1)
}

func (s *Service) append(ctx context.Context, req domain.AppendRequest, sign int64) (ledgerdomain.PointsEntry, error) {
	if req.TenantID == 0 {
		return ledgerdomain.PointsEntry{}, domain.ErrInvalidTenant
	}
	if req.CustomerID == 0 {
		return ledgerdomain.PointsEntry{}, domain.ErrInvalidCustomer
	}
	if req.Amount <= 0 {
		return ledgerdomain.PointsEntry{}, domain.ErrInvalidAmount
	}

	entry := ledgerdomain.PointsEntry{
		ID:         s.genID.Generate(),
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		Delta:      sign * req.Amount,
		Reason:     strings.TrimSpace(req.Reason),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.ledger.AppendPoints(ctx, s.db, &entry); err != nil {
		return ledgerdomain.PointsEntry{}, err
	}

	s.obsMetrics.RecordLedgerAppend(ctx, string(ledgerdomain.EntryKindPoints))

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, req.TenantID, req.CustomerID); err != nil {
			s.log.Warn("balance cache invalidation failed", zap.Error(err))
		}
	}

	return entry, nil
}
