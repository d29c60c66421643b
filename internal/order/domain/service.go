package domain

import (
	"context"
	"errors"
)

type CreateOrderRequest struct {
	BuyerID   string
	PackageID string
	ThemeID   string
}

type Service interface {
	Create(context.Context, CreateOrderRequest) (Order, error)
	Get(ctx context.Context, ref string) (Order, error)
}

var (
	ErrInvalidBuyer   = errors.New("invalid_buyer")
	ErrInvalidPackage = errors.New("invalid_package")
	ErrInvalidTheme   = errors.New("invalid_theme")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidRef     = errors.New("invalid_ref")
	ErrNotFound       = errors.New("not_found")
)
