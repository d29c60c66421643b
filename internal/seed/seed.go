package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/undangly/undangly/internal/catalog/domain"
	"github.com/undangly/undangly/pkg/db"
	"gorm.io/gorm"
)

type packageSeed struct {
	code         string
	name         string
	amount       int64
	domainMonths int
	themes       []themeSeed
}

type themeSeed struct {
	code string
	name string
}

const seedCurrency = "IDR"

var defaultPackages = []packageSeed{
	{
		code: "basic", name: "Basic", amount: 99000, domainMonths: 1,
		themes: []themeSeed{
			{code: "basic-classic", name: "Classic"},
			{code: "basic-minimal", name: "Minimal"},
		},
	},
	{
		code: "premium", name: "Premium", amount: 199000, domainMonths: 2,
		themes: []themeSeed{
			{code: "premium-floral", name: "Floral"},
			{code: "premium-royal", name: "Royal"},
		},
	},
	{
		code: "exclusive", name: "Exclusive", amount: 349000, domainMonths: 3,
		themes: []themeSeed{
			{code: "exclusive-gold", name: "Gold"},
			{code: "exclusive-signature", name: "Signature"},
		},
	},
}

// EnsureDefaultCatalog seeds the purchasable packages and their themes so a
// fresh install can take an order immediately. Existing rows are left alone.
func EnsureDefaultCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, pkg := range defaultPackages {
			pkgID, err := ensurePackage(ctx, tx, node, pkg, now)
			if err != nil {
				return err
			}
			for _, theme := range pkg.themes {
				if err := ensureTheme(ctx, tx, node, pkgID, theme, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func ensurePackage(ctx context.Context, tx *gorm.DB, node *snowflake.Node, pkg packageSeed, now time.Time) (snowflake.ID, error) {
	var existing catalogdomain.Package
	err := tx.WithContext(ctx).Where("code = ?", pkg.code).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	item := catalogdomain.Package{
		ID:           node.Generate(),
		Code:         pkg.code,
		Name:         pkg.name,
		Amount:       pkg.amount,
		Currency:     seedCurrency,
		DomainMonths: pkg.domainMonths,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
		// Another instance seeded the same code between the read and write.
		if db.IsDuplicateKeyErr(err) {
			if lookupErr := tx.WithContext(ctx).Where("code = ?", pkg.code).First(&existing).Error; lookupErr == nil {
				return existing.ID, nil
			}
		}
		return 0, err
	}
	return item.ID, nil
}

func ensureTheme(ctx context.Context, tx *gorm.DB, node *snowflake.Node, pkgID snowflake.ID, theme themeSeed, now time.Time) error {
	var existing catalogdomain.Theme
	err := tx.WithContext(ctx).Where("code = ?", theme.code).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	item := catalogdomain.Theme{
		ID:        node.Generate(),
		Code:      theme.code,
		Name:      theme.name,
		PackageID: pkgID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&item).Error; err != nil && !db.IsDuplicateKeyErr(err) {
		return err
	}
	return nil
}
