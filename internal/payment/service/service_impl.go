package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/undangly/undangly/internal/clock"
	"github.com/undangly/undangly/internal/config"
	obsmetrics "github.com/undangly/undangly/internal/observability/metrics"
	orderdomain "github.com/undangly/undangly/internal/order/domain"
	"github.com/undangly/undangly/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// lockShards bounds the memory spent on per-order serialization. Two orders
// sharing a shard serialize against each other, which is harmless; two
// goroutines touching the same order never interleave a local transition.
const lockShards = 64

const transitionRetries = 3

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	Clock    clock.Clock
	Repo     domain.Repository
	Gateway  domain.Gateway
	OrderSvc orderdomain.Service
	Metrics  *obsmetrics.PaymentMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	gateway  domain.Gateway
	orderSvc orderdomain.Service
	metrics  *obsmetrics.PaymentMetrics

	tokenTTL        time.Duration
	refreshInterval time.Duration

	locks [lockShards]sync.Mutex

	refreshGroup singleflight.Group
	refreshMu    sync.Mutex
	lastRefresh  map[snowflake.ID]time.Time
}

func New(p Params) domain.Service {
	ttl := time.Duration(p.Cfg.Payment.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	refresh := time.Duration(p.Cfg.Payment.PollIntervalMS) * time.Millisecond
	if refresh <= 0 {
		refresh = 3 * time.Second
	}

	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		clock:           p.Clock,
		repo:            p.Repo,
		gateway:         p.Gateway,
		orderSvc:        p.OrderSvc,
		metrics:         p.Metrics,
		tokenTTL:        ttl,
		refreshInterval: refresh,
		lastRefresh:     map[snowflake.ID]time.Time{},
	}
}

func (s *Service) StartPayment(ctx context.Context, req domain.StartPaymentRequest) (domain.StartPaymentResponse, error) {
	order, resumed, err := s.resolveOrder(ctx, req)
	if err != nil {
		return domain.StartPaymentResponse{}, err
	}

	if resumed {
		existing, err := s.repo.FindSessionByOrderID(ctx, s.db, order.ID)
		if err != nil {
			return domain.StartPaymentResponse{}, err
		}
		if existing != nil {
			return s.reuseSession(ctx, existing)
		}
	}

	// The gateway call happens outside any session lock; only the local
	// insert below is serialized (by the store's conflict handling).
	token, err := s.gateway.CreateTransaction(ctx, domain.TransactionRequest{
		OrderRef: order.ID.String(),
		Amount:   order.Amount,
		Currency: order.Currency,
		BuyerID:  order.BuyerID.String(),
	})
	if err != nil {
		return domain.StartPaymentResponse{}, err
	}

	now := s.clock.Now()
	session := domain.PaymentSession{
		OrderID:     order.ID,
		Token:       token.Token,
		RedirectURL: token.RedirectURL,
		Status:      domain.StatusPending,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Version:     1,
		ExpiresAt:   now.Add(s.tokenTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	inserted, err := s.repo.InsertSession(ctx, s.db, &session)
	if err != nil {
		return domain.StartPaymentResponse{}, err
	}
	if !inserted {
		// Lost the race against a concurrent start for the same order; the
		// durably recorded session wins and our token is discarded.
		existing, err := s.repo.FindSessionByOrderID(ctx, s.db, order.ID)
		if err != nil {
			return domain.StartPaymentResponse{}, err
		}
		if existing == nil {
			return domain.StartPaymentResponse{}, domain.ErrNotFound
		}
		return s.reuseSession(ctx, existing)
	}

	s.metrics.RecordSessionStarted(order.PackageCode)
	s.log.Info("payment session started",
		zap.String("order_ref", order.ID.String()),
		zap.Int64("amount", order.Amount),
		zap.Time("expires_at", session.ExpiresAt),
	)

	return domain.StartPaymentResponse{
		OrderRef:    order.ID.String(),
		Token:       session.Token,
		RedirectURL: session.RedirectURL,
		Amount:      session.Amount,
		Currency:    session.Currency,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

func (s *Service) resolveOrder(ctx context.Context, req domain.StartPaymentRequest) (orderdomain.Order, bool, error) {
	if ref := strings.TrimSpace(req.OrderRef); ref != "" {
		order, err := s.orderSvc.Get(ctx, ref)
		if err != nil {
			if errors.Is(err, orderdomain.ErrNotFound) || errors.Is(err, orderdomain.ErrInvalidRef) {
				return orderdomain.Order{}, false, domain.ErrNotFound
			}
			return orderdomain.Order{}, false, err
		}
		return order, true, nil
	}

	order, err := s.orderSvc.Create(ctx, orderdomain.CreateOrderRequest{
		BuyerID:   req.BuyerID,
		PackageID: req.PackageID,
		ThemeID:   req.ThemeID,
	})
	if err != nil {
		return orderdomain.Order{}, false, err
	}
	return order, false, nil
}

func (s *Service) reuseSession(ctx context.Context, session *domain.PaymentSession) (domain.StartPaymentResponse, error) {
	if session.Status == domain.StatusPending && s.clock.Now().Before(session.ExpiresAt) {
		return domain.StartPaymentResponse{
			OrderRef:    session.OrderID.String(),
			Token:       session.Token,
			RedirectURL: session.RedirectURL,
			Amount:      session.Amount,
			Currency:    session.Currency,
			ExpiresAt:   session.ExpiresAt,
		}, nil
	}
	if session.Status == domain.StatusPending {
		s.expire(ctx, session)
	}
	return domain.StartPaymentResponse{}, domain.ErrOrderClosed
}

func (s *Service) CheckStatus(ctx context.Context, orderRef string) (domain.SessionStatus, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(orderRef))
	if err != nil || orderID == 0 {
		return domain.SessionStatus{}, domain.ErrNotFound
	}

	session, err := s.repo.FindSessionByOrderID(ctx, s.db, orderID)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	if session == nil {
		return domain.SessionStatus{}, domain.ErrNotFound
	}

	// Terminal sessions answer from the store alone; polling them is cheap.
	if session.Status.Terminal() {
		s.forgetRefresh(orderID)
		return sessionStatus(session), nil
	}

	now := s.clock.Now()
	if !now.Before(session.ExpiresAt) {
		s.expire(ctx, session)
		return s.reload(ctx, session)
	}

	if s.gateway != nil && s.shouldRefresh(orderID, now) {
		s.refresh(ctx, orderID)
		return s.reload(ctx, session)
	}

	return sessionStatus(session), nil
}

// expire applies the lazy pending-to-expired transition. The CAS guarantees
// it lands at most once; a loss against a concurrent terminal write is
// absorbed.
func (s *Service) expire(ctx context.Context, session *domain.PaymentSession) {
	lock := s.lockFor(session.OrderID)
	lock.Lock()
	defer lock.Unlock()

	ok, err := s.repo.ApplyTransition(ctx, s.db, domain.Transition{
		OrderID:     session.OrderID,
		FromVersion: session.Version,
		To:          domain.StatusExpired,
		At:          s.clock.Now(),
	})
	if err != nil {
		s.log.Warn("expire transition failed",
			zap.String("order_ref", session.OrderID.String()),
			zap.Error(err),
		)
		return
	}
	if ok {
		s.forgetRefresh(session.OrderID)
		s.metrics.RecordTransition(string(domain.StatusExpired))
		s.log.Info("payment session expired",
			zap.String("order_ref", session.OrderID.String()),
		)
	}
}

// shouldRefresh throttles gateway refreshes to the negotiated poll interval.
func (s *Service) shouldRefresh(orderID snowflake.ID, now time.Time) bool {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if last, ok := s.lastRefresh[orderID]; ok && now.Sub(last) < s.refreshInterval {
		return false
	}
	s.lastRefresh[orderID] = now
	return true
}

// forgetRefresh drops the throttle entry once a session is terminal, so the
// map tracks only orders that can still change.
func (s *Service) forgetRefresh(orderID snowflake.ID) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	delete(s.lastRefresh, orderID)
}

// refresh pulls the gateway's view of the order and applies it. A failed
// refresh is logged and dropped: the caller is served the last durable
// status rather than a transient gateway error.
func (s *Service) refresh(ctx context.Context, orderID snowflake.ID) {
	ref := orderID.String()
	_, _, _ = s.refreshGroup.Do(ref, func() (any, error) {
		event, err := s.gateway.QueryStatus(ctx, ref)
		if err != nil {
			s.log.Debug("status refresh failed, serving last known",
				zap.String("order_ref", ref),
				zap.Error(err),
			)
			return nil, nil
		}
		if err := s.ProcessEvent(ctx, event); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("status refresh apply failed",
				zap.String("order_ref", ref),
				zap.Error(err),
			)
		}
		return nil, nil
	})
}

func (s *Service) reload(ctx context.Context, session *domain.PaymentSession) (domain.SessionStatus, error) {
	fresh, err := s.repo.FindSessionByOrderID(ctx, s.db, session.OrderID)
	if err != nil || fresh == nil {
		// Serve the previous snapshot over a transient reload failure.
		return sessionStatus(session), nil
	}
	return sessionStatus(fresh), nil
}

func (s *Service) ProcessEvent(ctx context.Context, event *domain.StatusEvent) error {
	if event == nil || event.OrderRef == 0 {
		return domain.ErrInvalidPayload
	}

	lock := s.lockFor(event.OrderRef)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < transitionRetries; attempt++ {
		session, err := s.repo.FindSessionByOrderID(ctx, s.db, event.OrderRef)
		if err != nil {
			return err
		}
		if session == nil {
			return domain.ErrNotFound
		}

		// Terminal states absorb every later event, including conflicting
		// ones: the first durably recorded terminal value wins.
		if session.Status.Terminal() {
			return nil
		}

		if !event.Status.Terminal() {
			// Still pending at the gateway. Record the transaction id if we
			// have not seen it yet; drop the event otherwise.
			if event.TransactionID == "" || session.TransactionID != "" {
				return nil
			}
			_, err := s.repo.ApplyTransition(ctx, s.db, domain.Transition{
				OrderID:       session.OrderID,
				FromVersion:   session.Version,
				To:            domain.StatusPending,
				TransactionID: event.TransactionID,
				At:            s.clock.Now(),
			})
			return err
		}

		ok, err := s.repo.ApplyTransition(ctx, s.db, domain.Transition{
			OrderID:       session.OrderID,
			FromVersion:   session.Version,
			To:            event.Status,
			TransactionID: event.TransactionID,
			At:            s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if ok {
			s.forgetRefresh(session.OrderID)
			s.metrics.RecordTransition(string(event.Status))
			s.log.Info("payment session transitioned",
				zap.String("order_ref", session.OrderID.String()),
				zap.String("status", string(event.Status)),
				zap.String("transaction_status", event.TransactionStatus),
			)
			return nil
		}
		// Version moved underneath us; re-read and re-evaluate.
	}
	return nil
}

func (s *Service) lockFor(orderID snowflake.ID) *sync.Mutex {
	return &s.locks[uint64(orderID)%lockShards]
}

func sessionStatus(session *domain.PaymentSession) domain.SessionStatus {
	return domain.SessionStatus{
		OrderRef:  session.OrderID.String(),
		Status:    session.Status,
		Amount:    session.Amount,
		Currency:  session.Currency,
		ExpiresAt: session.ExpiresAt,
		UpdatedAt: session.UpdatedAt,
	}
}
