package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reserva/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProductRequest) (domain.Product, error) {
	if req.TenantID == 0 {
		return domain.Product{}, domain.ErrInvalidTenant
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.Product{}, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, domain.ErrInvalidName
	}

	existing, err := s.repo.FindByCode(ctx, s.db, req.TenantID, code)
	if err != nil {
		return domain.Product{}, err
	}
	if existing != nil {
		return domain.Product{}, domain.ErrCodeExists
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:        s.genID.Generate(),
		TenantID:  req.TenantID,
		Code:      code,
		Name:      name,
		Active:    true,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		product.Description = &desc
	}

	if err := s.repo.Insert(ctx, s.db, &product); err != nil {
		return domain.Product{}, err
	}

	return product, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID, id snowflake.ID) (domain.Product, error) {
	if tenantID == 0 {
		return domain.Product{}, domain.ErrInvalidTenant
	}
	if id == 0 {
		return domain.Product{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]domain.Product, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	items, err := s.repo.List(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		products = append(products, *item)
	}
	return products, nil
}
