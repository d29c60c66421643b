package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/undangly/undangly/internal/catalog/domain"
	"github.com/undangly/undangly/internal/clock"
	"github.com/undangly/undangly/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	CatalogSvc catalogdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	catalogSvc catalogdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		catalogSvc: p.CatalogSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	buyerID, err := snowflake.ParseString(strings.TrimSpace(req.BuyerID))
	if err != nil || buyerID == 0 {
		return domain.Order{}, domain.ErrInvalidBuyer
	}

	pkg, err := s.catalogSvc.GetPackageByID(ctx, req.PackageID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrNotFound) || errors.Is(err, catalogdomain.ErrInvalidID) {
			return domain.Order{}, domain.ErrInvalidPackage
		}
		return domain.Order{}, err
	}
	if !pkg.Active {
		return domain.Order{}, domain.ErrInvalidPackage
	}
	if pkg.Amount <= 0 {
		return domain.Order{}, domain.ErrInvalidAmount
	}

	var themeID *snowflake.ID
	if strings.TrimSpace(req.ThemeID) != "" {
		theme, err := s.catalogSvc.GetThemeByID(ctx, req.ThemeID)
		if err != nil {
			if errors.Is(err, catalogdomain.ErrNotFound) || errors.Is(err, catalogdomain.ErrInvalidID) {
				return domain.Order{}, domain.ErrInvalidTheme
			}
			return domain.Order{}, err
		}
		if theme.PackageID != pkg.ID {
			return domain.Order{}, domain.ErrInvalidTheme
		}
		themeID = &theme.ID
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:          s.genID.Generate(),
		BuyerID:     buyerID,
		PackageID:   pkg.ID,
		PackageCode: pkg.Code,
		ThemeID:     themeID,
		Amount:      pkg.Amount,
		Currency:    pkg.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if pkg.DomainMonths > 0 {
		expiry := now.AddDate(0, pkg.DomainMonths, 0)
		order.DomainExpiresAt = &expiry
	}

	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("package_code", order.PackageCode),
		zap.Int64("amount", order.Amount),
	)
	return order, nil
}

func (s *Service) Get(ctx context.Context, ref string) (domain.Order, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(ref))
	if err != nil || id == 0 {
		return domain.Order{}, domain.ErrInvalidRef
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Order{}, err
	}
	if item == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *item, nil
}
