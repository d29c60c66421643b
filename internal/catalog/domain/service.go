package domain

import (
	"context"
	"errors"
)

type Service interface {
	ListPackages(ctx context.Context) ([]Package, error)
	GetPackageByID(ctx context.Context, id string) (Package, error)
	ListThemes(ctx context.Context) ([]Theme, error)
	GetThemeByID(ctx context.Context, id string) (Theme, error)
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("not_found")
)
