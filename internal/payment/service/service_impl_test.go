package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	catalogrepository "github.com/undangly/undangly/internal/catalog/repository"
	catalogservice "github.com/undangly/undangly/internal/catalog/service"
	"github.com/undangly/undangly/internal/clock"
	"github.com/undangly/undangly/internal/config"
	orderdomain "github.com/undangly/undangly/internal/order/domain"
	orderrepository "github.com/undangly/undangly/internal/order/repository"
	orderservice "github.com/undangly/undangly/internal/order/service"
	"github.com/undangly/undangly/internal/payment/domain"
	paymentrepository "github.com/undangly/undangly/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testSchema = []string{
	`CREATE TABLE packages (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		domain_months INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE themes (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		package_id BIGINT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		buyer_id BIGINT NOT NULL,
		package_id BIGINT NOT NULL,
		package_code TEXT NOT NULL,
		theme_id BIGINT,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		domain_expires_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
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

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:paysvc_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range testSchema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type fakeGateway struct {
	mu          sync.Mutex
	createCalls int
	createErr   error
	statusEvent *domain.StatusEvent
	statusErr   error
}

func (g *fakeGateway) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &domain.TransactionToken{
		Token:       fmt.Sprintf("snap-token-%d", g.createCalls),
		RedirectURL: "https://app.sandbox.midtrans.com/snap/v4/redirection/snap-token",
	}, nil
}

func (g *fakeGateway) QueryStatus(ctx context.Context, orderRef string) (*domain.StatusEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if g.statusEvent == nil {
		return nil, domain.ErrNotFound
	}
	ev := *g.statusEvent
	return &ev, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls
}

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	gateway *fakeGateway
	orders  orderdomain.Service
	svc     domain.Service
	node    *snowflake.Node

	packageID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := openTestDB(t)
	fc := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	pkgID := node.Generate()
	now := fc.Now()
	require.NoError(t, db.Exec(
		`INSERT INTO packages (id, code, name, amount, currency, domain_months, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pkgID, "premium", "Premium", int64(199000), "IDR", 2, true, now, now,
	).Error)

	catalogSvc := catalogservice.New(catalogservice.Params{
		DB:   db,
		Log:  log,
		Repo: catalogrepository.Provide(),
	})
	orderSvc := orderservice.New(orderservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fc,
		Repo:       orderrepository.Provide(),
		CatalogSvc: catalogSvc,
	})

	gw := &fakeGateway{}
	cfg := config.Config{}
	cfg.Payment.TokenTTLHours = 24
	cfg.Payment.PollIntervalMS = 3000

	svc := New(Params{
		DB:       db,
		Log:      log,
		Cfg:      cfg,
		Clock:    fc,
		Repo:     paymentrepository.Provide(),
		Gateway:  gw,
		OrderSvc: orderSvc,
	})

	return &fixture{
		db:        db,
		clock:     fc,
		gateway:   gw,
		orders:    orderSvc,
		svc:       svc,
		node:      node,
		packageID: pkgID.String(),
	}
}

func (f *fixture) start(t *testing.T) domain.StartPaymentResponse {
	t.Helper()
	resp, err := f.svc.StartPayment(context.Background(), domain.StartPaymentRequest{
		BuyerID:   f.node.Generate().String(),
		PackageID: f.packageID,
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) session(t *testing.T, orderRef string) domain.PaymentSession {
	t.Helper()
	id, err := snowflake.ParseString(orderRef)
	require.NoError(t, err)
	var item domain.PaymentSession
	require.NoError(t, f.db.Raw(`SELECT * FROM payment_sessions WHERE order_id = ?`, id).Scan(&item).Error)
	require.NotZero(t, item.OrderID)
	return item
}

func TestStartPaymentCreatesPendingSession(t *testing.T) {
	f := newFixture(t)

	resp := f.start(t)
	require.NotEmpty(t, resp.Token)
	require.NotEmpty(t, resp.OrderRef)
	require.Equal(t, int64(199000), resp.Amount)
	require.Equal(t, f.clock.Now().Add(24*time.Hour), resp.ExpiresAt.UTC())

	sess := f.session(t, resp.OrderRef)
	require.Equal(t, domain.StatusPending, sess.Status)
	require.Equal(t, int64(1), sess.Version)
	require.Equal(t, resp.Token, sess.Token)
}

func TestStartPaymentResumeReusesLiveSession(t *testing.T) {
	f := newFixture(t)

	first := f.start(t)
	require.Equal(t, 1, f.gateway.calls())

	resumed, err := f.svc.StartPayment(context.Background(), domain.StartPaymentRequest{OrderRef: first.OrderRef})
	require.NoError(t, err)
	require.Equal(t, first.Token, resumed.Token)
	require.Equal(t, 1, f.gateway.calls())
}

func TestStartPaymentResumeClosedOrder(t *testing.T) {
	f := newFixture(t)
	resp := f.start(t)
	ref, err := snowflake.ParseString(resp.OrderRef)
	require.NoError(t, err)

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &domain.StatusEvent{
		OrderRef:      ref,
		TransactionID: "txn-1",
		Status:        domain.StatusSettled,
	}))

	_, err = f.svc.StartPayment(context.Background(), domain.StartPaymentRequest{OrderRef: resp.OrderRef})
	require.ErrorIs(t, err, domain.ErrOrderClosed)
}

func TestStartPaymentUnknownOrderRef(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartPayment(context.Background(), domain.StartPaymentRequest{
		OrderRef: f.node.Generate().String(),
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessEventSettlesOnce(t *testing.T) {
	f := newFixture(t)
	resp := f.start(t)
	ref, err := snowflake.ParseString(resp.OrderRef)
	require.NoError(t, err)

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &domain.StatusEvent{
		OrderRef:      ref,
		TransactionID: "txn-1",
		Status:        domain.StatusSettled,
	}))

	sess := f.session(t, resp.OrderRef)
	require.Equal(t, domain.StatusSettled, sess.Status)
	require.Equal(t, "txn-1", sess.TransactionID)
	require.Equal(t, int64(2), sess.Version)

	// A later conflicting event is absorbed without rewriting the row.
	require.NoError(t, f.svc.ProcessEvent(context.Background(), &domain.StatusEvent{
		OrderRef:      ref,
		TransactionID: "txn-1",
		Status:        domain.StatusFailed,
	}))

	sess = f.session(t, resp.OrderRef)
	require.Equal(t, domain.StatusSettled, sess.Status)
	require.Equal(t, int64(2), sess.Version)
}

func TestProcessEventPendingRecordsTransactionID(t *testing.T) {
	f := newFixture(t)
	resp := f.start(t)
	ref, err := snowflake.ParseString(resp.OrderRef)
	require.NoError(t, err)

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &domain.StatusEvent{
		OrderRef:          ref,
		TransactionID:     "txn-1",
		TransactionStatus: "pending",
		Status:            domain.StatusPending,
	}))

	sess := f.session(t, resp.OrderRef)
	require.Equal(t, domain.StatusPending, sess.Status)
	require.Equal(t, "txn-1", sess.TransactionID)
}

func TestProcessEventUnknownOrder(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ProcessEvent(context.Background(), &domain.StatusEvent{
		OrderRef: f.node.Generate(),
		Status:   domain.StatusSettled,
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckStatusLazyExpiry(t *testing.T) {
	f := newFixture(t)
	resp := f.start(t)

	f.clock.Advance(24*time.Hour + time.Minute)

	status, err := f.svc.CheckStatus(context.Background(), resp.OrderRef)
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, status.Status)

	sess := f.session(t, resp.OrderRef)
	require.Equal(t, int64(2), sess.Version)

	// Polling again does not re-apply the transition.
	status, err = f.svc.CheckStatus(context.Background(), resp.OrderRef)
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, status.Status)
	require.Equal(t, int64(2), f.session(t, resp.OrderRef).Version)
}

func TestCheckStatusRefreshAppliesGatewayState(t *testing.T) {
	f := newFixture(t)
	resp := f.start(t)
	ref, err := snowflake.ParseString(resp.OrderRef)
	require.NoError(t, err)

	f.gateway.statusEvent = &domain.StatusEvent{
		OrderRef:          ref,
		TransactionID:     "txn-9",
		TransactionStatus: "settlement",
		Status:            domain.StatusSettled,
	}

	status, err := f.svc.CheckStatus(context.Background(), resp.OrderRef)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSettled, status.Status)
}

func TestCheckStatusRefreshFailureServesLastKnown(t *testing.T) {
	f := newFixture(t)
	resp := f.start(t)
	f.gateway.statusErr = domain.ErrGatewayUnavailable

	status, err := f.svc.CheckStatus(context.Background(), resp.OrderRef)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, status.Status)
}

func TestCheckStatusUnknownRef(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckStatus(context.Background(), "not-a-ref")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CheckStatus(context.Background(), f.node.Generate().String())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTerminalSessionReleasesRefreshThrottle(t *testing.T) {
	f := newFixture(t)
	resp := f.start(t)
	ref, err := snowflake.ParseString(resp.OrderRef)
	require.NoError(t, err)

	// A pending poll records a throttle entry for the order.
	_, err = f.svc.CheckStatus(context.Background(), resp.OrderRef)
	require.NoError(t, err)

	impl := f.svc.(*Service)
	impl.refreshMu.Lock()
	_, tracked := impl.lastRefresh[ref]
	impl.refreshMu.Unlock()
	require.True(t, tracked)

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &domain.StatusEvent{
		OrderRef:      ref,
		TransactionID: "txn-1",
		Status:        domain.StatusSettled,
	}))

	impl.refreshMu.Lock()
	_, tracked = impl.lastRefresh[ref]
	impl.refreshMu.Unlock()
	require.False(t, tracked)
}

func TestProcessEventConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	resp := f.start(t)
	ref, err := snowflake.ParseString(resp.OrderRef)
	require.NoError(t, err)

	statuses := []domain.Status{domain.StatusSettled, domain.StatusFailed}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.svc.ProcessEvent(context.Background(), &domain.StatusEvent{
				OrderRef:      ref,
				TransactionID: fmt.Sprintf("txn-%d", i),
				Status:        statuses[i%len(statuses)],
			})
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("process event: %v", err)
			}
		}(i)
	}
	wg.Wait()

	sess := f.session(t, resp.OrderRef)
	require.True(t, sess.Status.Terminal())
	require.Equal(t, int64(2), sess.Version)
}
