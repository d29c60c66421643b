package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/undangly/undangly/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListPackages(ctx context.Context) ([]domain.Package, error) {
	return s.repo.ListPackages(ctx, s.db)
}

func (s *Service) GetPackageByID(ctx context.Context, id string) (domain.Package, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Package{}, err
	}
	item, err := s.repo.FindPackageByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Package{}, err
	}
	if item == nil {
		return domain.Package{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListThemes(ctx context.Context) ([]domain.Theme, error) {
	return s.repo.ListThemes(ctx, s.db)
}

func (s *Service) GetThemeByID(ctx context.Context, id string) (domain.Theme, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Theme{}, err
	}
	item, err := s.repo.FindThemeByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Theme{}, err
	}
	if item == nil {
		return domain.Theme{}, domain.ErrNotFound
	}
	return *item, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
