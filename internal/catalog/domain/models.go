package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Package is a purchasable invitation tier. DomainMonths drives how long the
// buyer keeps their custom invitation domain; it is catalog data, not code.
type Package struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Code         string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	Amount       int64        `json:"amount" gorm:"not null"`
	Currency     string       `json:"currency" gorm:"type:text;not null"`
	DomainMonths int          `json:"domain_months" gorm:"not null"`
	Active       bool         `json:"active" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (Package) TableName() string { return "packages" }

// Theme is an invitation design belonging to a package tier.
type Theme struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	PackageID snowflake.ID `json:"package_id" gorm:"not null;index"`
	Active    bool         `json:"active" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Theme) TableName() string { return "themes" }
