package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the lifecycle state of a payment session. Settled, Failed and
// Expired are terminal; no transition ever leaves them.
type Status string

const (
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSettled, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// PaymentSession tracks one order's progress through the gateway lifecycle.
// There is at most one session per order; the order id is the primary key.
type PaymentSession struct {
	OrderID       snowflake.ID `json:"order_id" gorm:"column:order_id;primaryKey"`
	Token         string       `json:"token" gorm:"type:text;not null"`
	RedirectURL   string       `json:"redirect_url" gorm:"type:text"`
	TransactionID string       `json:"transaction_id" gorm:"type:text"`
	Status        Status       `json:"status" gorm:"type:text;not null"`
	Amount        int64        `json:"amount" gorm:"not null"`
	Currency      string       `json:"currency" gorm:"type:text;not null"`
	Version       int64        `json:"-" gorm:"not null"`
	ExpiresAt     time.Time    `json:"expires_at" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (PaymentSession) TableName() string { return "payment_sessions" }

// NotificationRecord is the durable copy of one gateway webhook delivery,
// keyed by (transaction_id, transaction_status) so replays collapse onto the
// first insert.
type NotificationRecord struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrderID           snowflake.ID   `json:"order_id" gorm:"not null;index"`
	TransactionID     string         `json:"transaction_id" gorm:"type:text;not null"`
	TransactionStatus string         `json:"transaction_status" gorm:"type:text;not null"`
	Payload           datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt       *time.Time     `json:"processed_at"`
}

func (NotificationRecord) TableName() string { return "gateway_notifications" }

// StatusEvent is the canonical gateway-reported status change applied to a
// session. It is transient; the raw payload survives on NotificationRecord.
type StatusEvent struct {
	OrderRef          snowflake.ID
	TransactionID     string
	TransactionStatus string
	StatusCode        string
	GrossAmount       string
	Status            Status
	OccurredAt        time.Time
	RawPayload        []byte
}

// CanonicalStatus maps a gateway transaction status string onto the session
// state machine. The second return is false for statuses that carry no
// transition (still pending, or unknown).
func CanonicalStatus(transactionStatus string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(transactionStatus)) {
	case "capture", "settlement":
		return StatusSettled, true
	case "deny", "cancel", "expire", "failure":
		return StatusFailed, true
	case "pending", "authorize":
		return StatusPending, false
	default:
		return "", false
	}
}
