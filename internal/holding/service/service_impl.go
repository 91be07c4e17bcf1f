package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/internal/config"
	"github.com/smallbiznis/reserva/internal/holding/domain"
	ledgerdomain "github.com/smallbiznis/reserva/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/reserva/internal/observability/metrics"
	"github.com/smallbiznis/reserva/pkg/db"
	"github.com/smallbiznis/reserva/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxAdjustRetries bounds the optimistic retry loop before the caller sees
// ErrConsistency.
const maxAdjustRetries = 3

// errVersionConflict signals a lost CAS inside the adjust transaction.
var errVersionConflict = errors.New("holding version conflict")

type Params struct {
	fx.In

	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Ledger     ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	ledger     ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("holding.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		ledger:     p.Ledger,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Grant(ctx context.Context, req domain.GrantRequest) (domain.GrantResponse, error) {
	if req.TenantID == 0 {
		return domain.GrantResponse{}, domain.ErrInvalidTenant
	}
	if req.CustomerID == 0 {
		return domain.GrantResponse{}, domain.ErrInvalidCustomer
	}
	if req.ProductID == 0 {
		return domain.GrantResponse{}, domain.ErrInvalidProduct
	}
	if req.Quantity <= 0 {
		return domain.GrantResponse{}, domain.ErrInvalidQuantity
	}

	if resp, ok, err := s.replayGrant(ctx, req); err != nil {
		return domain.GrantResponse{}, err
	} else if ok {
		return resp, nil
	}

	reason := "initial grant"
	if memo := strings.TrimSpace(req.Reason); memo != "" {
		reason = fmt.Sprintf("initial grant: %s", memo)
	}

	now := time.Now().UTC()
	holding := domain.Holding{
		ID:         s.genID.Generate(),
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	entry := ledgerdomain.HoldingEntry{
		ID:         s.genID.Generate(),
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		HoldingID:  holding.ID,
		Delta:      req.Quantity,
		Reason:     reason,
		CreatedAt:  now,
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		entry.IdempotencyKey = &key
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByCustomerProduct(ctx, tx, req.TenantID, req.CustomerID, req.ProductID)
		if err != nil {
			return err
		}
		if existing != nil {
			// Grants never merge with an existing holding; a second
			// grant for the pair is a caller error.
			return domain.ErrHoldingExists
		}

		if err := s.repo.Insert(ctx, tx, &holding); err != nil {
			return err
		}
		return s.ledger.AppendHolding(ctx, tx, &entry)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// The unique index fired: either a concurrent grant for the
			// same pair, or a replayed idempotency key.
			if resp, ok, rErr := s.replayGrant(ctx, req); rErr != nil {
				return domain.GrantResponse{}, rErr
			} else if ok {
				return resp, nil
			}
			return domain.GrantResponse{}, domain.ErrHoldingExists
		}
		return domain.GrantResponse{}, err
	}

	s.obsMetrics.RecordLedgerAppend(ctx, string(ledgerdomain.EntryKindHolding))
	return domain.GrantResponse{Holding: holding, Entry: entry}, nil
}

func (s *Service) Adjust(ctx context.Context, req domain.AdjustRequest) (domain.AdjustResponse, error) {
	if req.TenantID == 0 {
		return domain.AdjustResponse{}, domain.ErrInvalidTenant
	}
	if req.HoldingID == 0 {
		return domain.AdjustResponse{}, domain.ErrInvalidHolding
	}
	if req.Amount == 0 {
		return domain.AdjustResponse{}, domain.ErrInvalidQuantity
	}

	if resp, ok, err := s.replayAdjust(ctx, req); err != nil {
		return domain.AdjustResponse{}, err
	} else if ok {
		return resp, nil
	}

	var resp domain.AdjustResponse
	for attempt := 0; attempt < maxAdjustRetries; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			holding, err := s.repo.FindByID(ctx, tx, req.TenantID, req.HoldingID)
			if err != nil {
				return err
			}
			if holding == nil {
				return domain.ErrNotFound
			}

			// Quantities floor at zero: the ledger records the change
			// that actually happened, not the one that was requested.
			newQuantity := holding.Quantity + req.Amount
			if newQuantity < 0 {
				newQuantity = 0
			}
			applied := newQuantity - holding.Quantity

			if applied == 0 {
				resp = domain.AdjustResponse{Holding: *holding}
				return nil
			}

			ok, err := s.repo.UpdateQuantityCAS(ctx, tx, req.TenantID, holding.ID, newQuantity, holding.Version)
			if err != nil {
				return err
			}
			if !ok {
				return errVersionConflict
			}

			entry := ledgerdomain.HoldingEntry{
				ID:         s.genID.Generate(),
				TenantID:   req.TenantID,
				CustomerID: holding.CustomerID,
				ProductID:  holding.ProductID,
				HoldingID:  holding.ID,
				Delta:      applied,
				Reason:     strings.TrimSpace(req.Reason),
				CreatedAt:  time.Now().UTC(),
			}
			if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
				entry.IdempotencyKey = &key
			}
			if err := s.ledger.AppendHolding(ctx, tx, &entry); err != nil {
				return err
			}

			holding.Quantity = newQuantity
			holding.Version++
			resp = domain.AdjustResponse{Holding: *holding, Entry: &entry, Applied: applied}
			return nil
		})
		if err == nil {
			if resp.Entry != nil {
				s.obsMetrics.RecordLedgerAppend(ctx, string(ledgerdomain.EntryKindHolding))
			}
			return resp, nil
		}
		if errors.Is(err, errVersionConflict) {
			s.obsMetrics.RecordAdjustRetry(ctx)
			s.log.Debug("holding adjust lost update, retrying",
				zap.String("holding_id", req.HoldingID.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if db.IsDuplicateKeyErr(err) {
			if replayed, ok, rErr := s.replayAdjust(ctx, req); rErr != nil {
				return domain.AdjustResponse{}, rErr
			} else if ok {
				return replayed, nil
			}
		}
		return domain.AdjustResponse{}, err
	}

	return domain.AdjustResponse{}, domain.ErrConsistency
}

func (s *Service) Get(ctx context.Context, tenantID, holdingID snowflake.ID) (domain.Holding, error) {
	if tenantID == 0 {
		return domain.Holding{}, domain.ErrInvalidTenant
	}
	if holdingID == 0 {
		return domain.Holding{}, domain.ErrInvalidHolding
	}

	holding, err := s.repo.FindByID(ctx, s.db, tenantID, holdingID)
	if err != nil {
		return domain.Holding{}, err
	}
	if holding == nil {
		return domain.Holding{}, domain.ErrNotFound
	}

	if s.cfg.VerifyReconciliation {
		s.verifyReconciliation(ctx, holding)
	}

	return *holding, nil
}

func (s *Service) ListByCustomer(ctx context.Context, tenantID, customerID snowflake.ID) ([]domain.Holding, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if customerID == 0 {
		return nil, domain.ErrInvalidCustomer
	}

	items, err := s.repo.ListByCustomer(ctx, s.db, tenantID, customerID)
	if err != nil {
		return nil, err
	}

	holdings := make([]domain.Holding, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		holdings = append(holdings, *item)
	}
	return holdings, nil
}

func (s *Service) Remove(ctx context.Context, tenantID, holdingID snowflake.ID) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	if holdingID == 0 {
		return domain.ErrInvalidHolding
	}

	// Ledger rows survive the delete on purpose: the audit trail outlives
	// the entity it explains.
	return s.repo.Delete(ctx, s.db, tenantID, holdingID)
}

func (s *Service) ListEntries(ctx context.Context, req domain.ListEntriesRequest) (domain.ListEntriesResponse, error) {
	if req.TenantID == 0 {
		return domain.ListEntriesResponse{}, domain.ErrInvalidTenant
	}
	if req.CustomerID == 0 && req.HoldingID == 0 {
		return domain.ListEntriesResponse{}, domain.ErrInvalidHolding
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.ledger.ListHoldingEntries(ctx, s.db, req.TenantID, ledgerdomain.HoldingEntryFilter{
		CustomerID: req.CustomerID,
		HoldingID:  req.HoldingID,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(entry *ledgerdomain.HoldingEntry) string {
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

	entries := make([]ledgerdomain.HoldingEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := domain.ListEntriesResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) AnnotateEntry(ctx context.Context, tenantID, entryID snowflake.ID, notes string) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}

	err := s.ledger.UpdateHoldingEntryNotes(ctx, s.db, tenantID, entryID, notes)
	if errors.Is(err, ledgerdomain.ErrNotFound) {
		return domain.ErrEntryNotFound
	}
	return err
}

func (s *Service) CorrectByTextMatch(ctx context.Context, req domain.CorrectRequest) (*ledgerdomain.HoldingEntry, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.HoldingID == 0 {
		return nil, domain.ErrInvalidHolding
	}
	if req.Fragment == "" {
		return nil, domain.ErrInvalidFragment
	}

	s.log.Warn("deprecated text-match correction invoked; reference entries by id instead",
		zap.String("holding_id", req.HoldingID.String()),
	)

	var corrected *ledgerdomain.HoldingEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.ledger.FindLatestHoldingMatching(ctx, tx, req.TenantID, req.HoldingID, req.Fragment)
		if err != nil {
			return err
		}
		if entry == nil {
			// Legacy contract: a miss is a no-op, not an error.
			return nil
		}

		newReason := strings.Replace(entry.Reason, req.Fragment, req.Replacement, 1)
		if err := s.ledger.RewriteHoldingEntry(ctx, tx, req.TenantID, entry.ID, newReason, req.DeltaOverride); err != nil {
			return err
		}

		entry.Reason = newReason
		if req.DeltaOverride != nil {
			entry.Delta = *req.DeltaOverride

			// Rewriting a delta changes history; re-derive the
			// materialized quantity so the reconciliation invariant
			// holds again.
			sum, err := s.ledger.SumHoldingDeltas(ctx, tx, req.TenantID, req.HoldingID)
			if err != nil {
				return err
			}
			if sum < 0 {
				sum = 0
			}
			if err := s.repo.ForceQuantity(ctx, tx, req.TenantID, req.HoldingID, sum); err != nil {
				return err
			}
		}

		corrected = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordLegacyCorrection(ctx, corrected != nil)
	if corrected == nil {
		s.log.Warn("text-match correction matched no entry",
			zap.String("holding_id", req.HoldingID.String()),
		)
	}
	return corrected, nil
}

func (s *Service) verifyReconciliation(ctx context.Context, holding *domain.Holding) {
	sum, err := s.ledger.SumHoldingDeltas(ctx, s.db, holding.TenantID, holding.ID)
	if err != nil {
		s.log.Warn("reconciliation check failed", zap.Error(err))
		return
	}
	if sum < 0 {
		sum = 0
	}
	if sum != holding.Quantity {
		s.obsMetrics.RecordReconciliationMismatch(ctx)
		s.log.Error("holding quantity drifted from ledger",
			zap.String("holding_id", holding.ID.String()),
			zap.Int64("quantity", holding.Quantity),
			zap.Int64("ledger_sum", sum),
		)
	}
}

func (s *Service) replayGrant(ctx context.Context, req domain.GrantRequest) (domain.GrantResponse, bool, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return domain.GrantResponse{}, false, nil
	}

	entry, err := s.ledger.FindHoldingEntryByIdempotencyKey(ctx, s.db, req.TenantID, key)
	if err != nil || entry == nil {
		return domain.GrantResponse{}, false, err
	}
	if entry.CustomerID != req.CustomerID || entry.ProductID != req.ProductID {
		// The key already belongs to a different pair; replaying it here
		// would hand back someone else's grant.
		return domain.GrantResponse{}, false, domain.ErrKeyReused
	}

	resp := domain.GrantResponse{Entry: *entry, Replay: true}
	holding, err := s.repo.FindByID(ctx, s.db, req.TenantID, entry.HoldingID)
	if err != nil {
		return domain.GrantResponse{}, false, err
	}
	if holding != nil {
		resp.Holding = *holding
	}
	return resp, true, nil
}

func (s *Service) replayAdjust(ctx context.Context, req domain.AdjustRequest) (domain.AdjustResponse, bool, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return domain.AdjustResponse{}, false, nil
	}

	entry, err := s.ledger.FindHoldingEntryByIdempotencyKey(ctx, s.db, req.TenantID, key)
	if err != nil || entry == nil {
		return domain.AdjustResponse{}, false, err
	}
	if entry.HoldingID != req.HoldingID {
		return domain.AdjustResponse{}, false, domain.ErrKeyReused
	}

	resp := domain.AdjustResponse{Entry: entry, Applied: entry.Delta, Replay: true}
	holding, err := s.repo.FindByID(ctx, s.db, req.TenantID, entry.HoldingID)
	if err != nil {
		return domain.AdjustResponse{}, false, err
	}
	if holding != nil {
		resp.Holding = *holding
	}
	return resp, true, nil
}
