package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"github.com/undangly/undangly/internal/clock"
	"github.com/undangly/undangly/internal/config"
	"github.com/undangly/undangly/internal/payment/domain"
	"github.com/undangly/undangly/internal/payment/gateway"
	paymentrepository "github.com/undangly/undangly/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testServerKey = "SB-Mid-server-testing"

var testSchema = []string{
	`CREATE TABLE payment_sessions (
		order_id BIGINT PRIMARY KEY,
		token TEXT NOT NULL,
		redirect_url TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE gateway_notifications (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		transaction_id TEXT NOT NULL,
		transaction_status TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (transaction_id, transaction_status)
	)`,
}

// recordingService captures events instead of driving the full state machine;
// the transition semantics have their own tests in the service package.
type recordingService struct {
	events []*domain.StatusEvent
	err    error
}

func (s *recordingService) StartPayment(context.Context, domain.StartPaymentRequest) (domain.StartPaymentResponse, error) {
	return domain.StartPaymentResponse{}, nil
}

func (s *recordingService) CheckStatus(context.Context, string) (domain.SessionStatus, error) {
	return domain.SessionStatus{}, nil
}

func (s *recordingService) ProcessEvent(_ context.Context, event *domain.StatusEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	inner *recordingService
	svc   domain.WebhookService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	for _, stmt := range testSchema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.Gateway.ServerKey = testServerKey
	cfg.Payment.WebhookTimeoutSeconds = 30

	inner := &recordingService{}
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   cfg,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
		GenID: node,
		Repo:  paymentrepository.Provide(),
		Svc:   inner,
	})

	return &fixture{db: db, node: node, inner: inner, svc: svc}
}

func (f *fixture) notification(t *testing.T, orderRef snowflake.ID, txnStatus string, sign bool) []byte {
	t.Helper()
	statusCode := "200"
	grossAmount := gateway.FormatGrossAmount(199000)
	signature := "bogus"
	if sign {
		signature = gateway.ComputeSignature(orderRef.String(), statusCode, grossAmount, testServerKey)
	}
	payload, err := json.Marshal(map[string]string{
		"order_id":           orderRef.String(),
		"transaction_id":     "txn-1",
		"transaction_status": txnStatus,
		"status_code":        statusCode,
		"gross_amount":       grossAmount,
		"signature_key":      signature,
		"transaction_time":   "2026-03-14 16:01:02",
	})
	require.NoError(t, err)
	return payload
}

func TestIngestNotificationProcessesEvent(t *testing.T) {
	f := newFixture(t)
	orderRef := f.node.Generate()

	err := f.svc.IngestNotification(context.Background(), f.notification(t, orderRef, "settlement", true))
	require.NoError(t, err)

	require.Len(t, f.inner.events, 1)
	event := f.inner.events[0]
	require.Equal(t, orderRef, event.OrderRef)
	require.Equal(t, domain.StatusSettled, event.Status)
	require.Equal(t, "txn-1", event.TransactionID)
	require.Equal(t, time.Date(2026, 3, 14, 16, 1, 2, 0, time.UTC), event.OccurredAt)

	var processed int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(*) FROM gateway_notifications WHERE processed_at IS NOT NULL`,
	).Scan(&processed).Error)
	require.Equal(t, int64(1), processed)
}

func TestIngestNotificationReplay(t *testing.T) {
	f := newFixture(t)
	orderRef := f.node.Generate()
	payload := f.notification(t, orderRef, "settlement", true)

	require.NoError(t, f.svc.IngestNotification(context.Background(), payload))

	err := f.svc.IngestNotification(context.Background(), payload)
	require.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)
	require.Len(t, f.inner.events, 1)

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM gateway_notifications`).Scan(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIngestNotificationInvalidSignature(t *testing.T) {
	f := newFixture(t)
	orderRef := f.node.Generate()

	err := f.svc.IngestNotification(context.Background(), f.notification(t, orderRef, "settlement", false))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	require.Empty(t, f.inner.events)

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM gateway_notifications`).Scan(&count).Error)
	require.Zero(t, count)
}

func TestIngestNotificationInvalidPayload(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.svc.IngestNotification(context.Background(), []byte("not json")), domain.ErrInvalidPayload)
	require.ErrorIs(t, f.svc.IngestNotification(context.Background(), []byte(`{"order_id":""}`)), domain.ErrInvalidPayload)
}

func TestIngestNotificationRetriesUnprocessedDelivery(t *testing.T) {
	f := newFixture(t)
	orderRef := f.node.Generate()
	payload := f.notification(t, orderRef, "settlement", true)

	f.inner.err = domain.ErrNotFound
	require.ErrorIs(t, f.svc.IngestNotification(context.Background(), payload), domain.ErrNotFound)

	// Session shows up, gateway redelivers; the stored record is completed
	// rather than treated as a replay.
	f.inner.err = nil
	require.NoError(t, f.svc.IngestNotification(context.Background(), payload))
	require.Len(t, f.inner.events, 1)
}
