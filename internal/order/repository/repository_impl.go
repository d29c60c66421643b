package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/undangly/undangly/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, buyer_id, package_id, package_code, theme_id, amount,
			currency, domain_expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.BuyerID,
		order.PackageID,
		order.PackageCode,
		order.ThemeID,
		order.Amount,
		order.Currency,
		order.DomainExpiresAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, buyer_id, package_id, package_code, theme_id, amount,
			currency, domain_expires_at, created_at, updated_at
		 FROM orders
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
