package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/undangly/undangly/internal/clock"
	"github.com/undangly/undangly/internal/config"
	obsmetrics "github.com/undangly/undangly/internal/observability/metrics"
	"github.com/undangly/undangly/internal/payment/domain"
	"github.com/undangly/undangly/internal/payment/gateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// snapNotification is the gateway's webhook body. Only the fields the session
// state machine needs are decoded; the full payload is persisted raw.
type snapNotification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionTime   string `json:"transaction_time"`
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Clock   clock.Clock
	GenID   *snowflake.Node
	Repo    domain.Repository
	Svc     domain.Service
	Metrics *obsmetrics.PaymentMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	repo    domain.Repository
	svc     domain.Service
	metrics *obsmetrics.PaymentMetrics

	serverKey string
	timeout   time.Duration
}

func New(p Params) domain.WebhookService {
	timeout := time.Duration(p.Cfg.Payment.WebhookTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		clock:     p.Clock,
		genID:     p.GenID,
		repo:      p.Repo,
		svc:       p.Svc,
		metrics:   p.Metrics,
		serverKey: p.Cfg.Gateway.ServerKey,
		timeout:   timeout,
	}
}

func (s *Service) IngestNotification(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var note snapNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		s.metrics.RecordNotification("invalid_payload")
		return domain.ErrInvalidPayload
	}
	note.OrderID = strings.TrimSpace(note.OrderID)
	note.TransactionID = strings.TrimSpace(note.TransactionID)
	note.TransactionStatus = strings.TrimSpace(note.TransactionStatus)
	if note.OrderID == "" || note.TransactionID == "" || note.TransactionStatus == "" {
		s.metrics.RecordNotification("invalid_payload")
		return domain.ErrInvalidPayload
	}

	// Verification is fail closed: anything short of a matching signature is
	// rejected before the payload can touch session state.
	if !gateway.VerifySignature(note.OrderID, note.StatusCode, note.GrossAmount, s.serverKey, note.SignatureKey) {
		s.metrics.RecordNotification("invalid_signature")
		s.log.Warn("webhook signature mismatch",
			zap.String("order_ref", note.OrderID),
			zap.String("transaction_id", note.TransactionID),
		)
		return domain.ErrInvalidSignature
	}

	orderRef, err := snowflake.ParseString(note.OrderID)
	if err != nil || orderRef == 0 {
		s.metrics.RecordNotification("unknown_order")
		return domain.ErrNotFound
	}

	record := domain.NotificationRecord{
		ID:                s.genID.Generate(),
		OrderID:           orderRef,
		TransactionID:     note.TransactionID,
		TransactionStatus: note.TransactionStatus,
		Payload:           datatypes.JSON(payload),
		ReceivedAt:        s.clock.Now(),
	}
	inserted, err := s.repo.InsertNotification(ctx, s.db, &record)
	if err != nil {
		return err
	}
	if !inserted {
		prior, err := s.repo.FindNotification(ctx, s.db, note.TransactionID, note.TransactionStatus)
		if err != nil {
			return err
		}
		if prior == nil {
			return domain.ErrEventAlreadyProcessed
		}
		if prior.ProcessedAt != nil {
			s.metrics.RecordNotification("replay")
			s.log.Info("webhook replay absorbed",
				zap.String("order_ref", note.OrderID),
				zap.String("transaction_status", note.TransactionStatus),
			)
			return domain.ErrEventAlreadyProcessed
		}
		// First delivery crashed between insert and processing; finish it now.
		record = *prior
	}

	status, _ := domain.CanonicalStatus(note.TransactionStatus)
	event := domain.StatusEvent{
		OrderRef:          orderRef,
		TransactionID:     note.TransactionID,
		TransactionStatus: note.TransactionStatus,
		StatusCode:        note.StatusCode,
		GrossAmount:       note.GrossAmount,
		Status:            status,
		OccurredAt:        parseGatewayTime(note.TransactionTime, s.clock.Now()),
		RawPayload:        payload,
	}
	if err := s.svc.ProcessEvent(ctx, &event); err != nil {
		s.metrics.RecordNotification("process_failed")
		return err
	}

	if err := s.repo.MarkNotificationProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		return err
	}
	s.metrics.RecordNotification("processed")
	return nil
}

func parseGatewayTime(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	ts, err := time.Parse("2006-01-02 15:04:05", raw)
	if err != nil {
		return fallback
	}
	return ts
}
