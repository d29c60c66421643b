package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListPackages(ctx context.Context, db *gorm.DB) ([]Package, error)
	FindPackageByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Package, error)
	ListThemes(ctx context.Context, db *gorm.DB) ([]Theme, error)
	FindThemeByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Theme, error)
}
