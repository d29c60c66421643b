package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Transition is one attempted session state change. The write succeeds only
// when the stored row still matches FromVersion and is not terminal.
type Transition struct {
	OrderID       snowflake.ID
	FromVersion   int64
	To            Status
	TransactionID string
	At            time.Time
}

type Repository interface {
	// InsertSession writes a new session unless one already exists for the
	// order. Returns false without error when the row was already present.
	InsertSession(ctx context.Context, db *gorm.DB, session *PaymentSession) (bool, error)
	FindSessionByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*PaymentSession, error)

	// ApplyTransition performs the compare-and-swap state change. Returns
	// false when the version moved or the session is already terminal.
	ApplyTransition(ctx context.Context, db *gorm.DB, t Transition) (bool, error)

	// InsertNotification is idempotent on (transaction_id, transaction_status).
	InsertNotification(ctx context.Context, db *gorm.DB, record *NotificationRecord) (bool, error)
	FindNotification(ctx context.Context, db *gorm.DB, transactionID, transactionStatus string) (*NotificationRecord, error)
	MarkNotificationProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

// Gateway wraps the external payment processor. Implementations are
// stateless; retry policy lives inside the client.
type Gateway interface {
	// CreateTransaction requests a checkout token for the order. Fails with
	// ErrGatewayRejected on 4xx and ErrGatewayUnavailable once transient
	// retries are exhausted.
	CreateTransaction(ctx context.Context, req TransactionRequest) (*TransactionToken, error)

	// QueryStatus fetches the gateway's view of the order. Fails with
	// ErrNotFound when the gateway has no such transaction.
	QueryStatus(ctx context.Context, orderRef string) (*StatusEvent, error)
}

type TransactionRequest struct {
	OrderRef string
	Amount   int64
	Currency string
	BuyerID  string
}

type TransactionToken struct {
	Token       string
	RedirectURL string
}
