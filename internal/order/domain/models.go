package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Order is a buyer's request to purchase a package, with the amount frozen
// at creation time. Rows are never deleted; once the order's payment session
// reaches a terminal state the order is treated as immutable.
type Order struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	BuyerID         snowflake.ID  `json:"buyer_id" gorm:"not null;index"`
	PackageID       snowflake.ID  `json:"package_id" gorm:"not null"`
	PackageCode     string        `json:"package_code" gorm:"type:text;not null"`
	ThemeID         *snowflake.ID `json:"theme_id,omitempty"`
	Amount          int64         `json:"amount" gorm:"not null"`
	Currency        string        `json:"currency" gorm:"type:text;not null"`
	DomainExpiresAt *time.Time    `json:"domain_expires_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }
