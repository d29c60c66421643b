package domain

import (
	"context"
	"errors"
	"time"
)

type StartPaymentRequest struct {
	BuyerID   string
	PackageID string
	ThemeID   string

	// OrderRef resumes checkout for an existing order instead of creating a
	// new one. A live pending session for that order is reused as-is.
	OrderRef string
}

type StartPaymentResponse struct {
	OrderRef    string    `json:"order_ref"`
	Token       string    `json:"token"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type SessionStatus struct {
	OrderRef  string    `json:"order_ref"`
	Status    Status    `json:"status"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service owns all mutations of payment sessions.
type Service interface {
	StartPayment(context.Context, StartPaymentRequest) (StartPaymentResponse, error)
	CheckStatus(ctx context.Context, orderRef string) (SessionStatus, error)
	ProcessEvent(context.Context, *StatusEvent) error
}

// WebhookService ingests raw gateway push notifications.
type WebhookService interface {
	IngestNotification(ctx context.Context, payload []byte) error
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrGatewayRejected    = errors.New("gateway_rejected")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")

	// ErrOrderClosed reports a checkout resume against an order whose session
	// already reached a terminal status.
	ErrOrderClosed = errors.New("order_closed")

	// ErrEventAlreadyProcessed reports an idempotent replay. Callers treat it
	// as success.
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
