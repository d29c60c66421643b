package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/undangly/undangly/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListPackages(ctx context.Context, db *gorm.DB) ([]domain.Package, error) {
	var items []domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, amount, currency, domain_months, active, created_at, updated_at
		 FROM packages
		 WHERE active = TRUE
		 ORDER BY amount ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindPackageByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	var item domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, amount, currency, domain_months, active, created_at, updated_at
		 FROM packages
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListThemes(ctx context.Context, db *gorm.DB) ([]domain.Theme, error) {
	var items []domain.Theme
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, package_id, active, created_at, updated_at
		 FROM themes
		 WHERE active = TRUE
		 ORDER BY code ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindThemeByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Theme, error) {
	var item domain.Theme
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, package_id, active, created_at, updated_at
		 FROM themes
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
