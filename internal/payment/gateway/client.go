package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/undangly/undangly/internal/config"
	"github.com/undangly/undangly/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	sandboxSnapBaseURL    = "https://app.sandbox.midtrans.com"
	sandboxAPIBaseURL     = "https://api.sandbox.midtrans.com"
	productionSnapBaseURL = "https://app.midtrans.com"
	productionAPIBaseURL  = "https://api.midtrans.com"

	retryInitialInterval = 500 * time.Millisecond
	retryMaxAttempts     = 3
	requestTimeout       = 10 * time.Second
)

// SnapClient talks to a Snap-style payment gateway over HTTP. It holds no
// per-transaction state; transient failures are retried here with bounded
// exponential backoff, rejections are surfaced immediately.
type SnapClient struct {
	snapBaseURL string
	apiBaseURL  string
	serverKey   string
	httpClient  *http.Client
	log         *zap.Logger
}

func NewSnapClient(cfg config.Config, log *zap.Logger) *SnapClient {
	snapBase := cfg.Gateway.SnapBaseURL
	apiBase := cfg.Gateway.APIBaseURL
	if snapBase == "" {
		snapBase = sandboxSnapBaseURL
		if cfg.Gateway.Production {
			snapBase = productionSnapBaseURL
		}
	}
	if apiBase == "" {
		apiBase = sandboxAPIBaseURL
		if cfg.Gateway.Production {
			apiBase = productionAPIBaseURL
		}
	}

	return &SnapClient{
		snapBaseURL: strings.TrimRight(snapBase, "/"),
		apiBaseURL:  strings.TrimRight(apiBase, "/"),
		serverKey:   cfg.Gateway.ServerKey,
		httpClient:  &http.Client{Timeout: requestTimeout},
		log:         log.Named("payment.gateway"),
	}
}

type snapTransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type snapCreateRequest struct {
	TransactionDetails snapTransactionDetails `json:"transaction_details"`
	CustomerDetails    map[string]string      `json:"customer_details,omitempty"`
}

type snapCreateResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

type transactionStatusResponse struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	TransactionTime   string `json:"transaction_time"`
}

func (c *SnapClient) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionToken, error) {
	body, err := json.Marshal(snapCreateRequest{
		TransactionDetails: snapTransactionDetails{
			OrderID:     req.OrderRef,
			GrossAmount: req.Amount,
		},
		CustomerDetails: customerDetails(req.BuyerID),
	})
	if err != nil {
		return nil, err
	}

	var token *domain.TransactionToken
	operation := func() error {
		status, payload, err := c.do(ctx, http.MethodPost, c.snapBaseURL+"/snap/v1/transactions", body)
		if err != nil {
			return domain.ErrGatewayUnavailable
		}

		switch {
		case status >= http.StatusInternalServerError:
			return domain.ErrGatewayUnavailable
		case status >= http.StatusBadRequest:
			var resp snapCreateResponse
			_ = json.Unmarshal(payload, &resp)
			c.log.Warn("gateway rejected transaction",
				zap.String("order_ref", req.OrderRef),
				zap.Int("status", status),
				zap.Strings("messages", resp.ErrorMessages),
			)
			return backoff.Permanent(domain.ErrGatewayRejected)
		}

		var resp snapCreateResponse
		if err := json.Unmarshal(payload, &resp); err != nil || strings.TrimSpace(resp.Token) == "" {
			return backoff.Permanent(domain.ErrGatewayRejected)
		}
		token = &domain.TransactionToken{
			Token:       resp.Token,
			RedirectURL: resp.RedirectURL,
		}
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return nil, err
	}
	return token, nil
}

func (c *SnapClient) QueryStatus(ctx context.Context, orderRef string) (*domain.StatusEvent, error) {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return nil, domain.ErrNotFound
	}

	var event *domain.StatusEvent
	operation := func() error {
		status, payload, err := c.do(ctx, http.MethodGet, c.apiBaseURL+"/v2/"+orderRef+"/status", nil)
		if err != nil {
			return domain.ErrGatewayUnavailable
		}

		switch {
		case status >= http.StatusInternalServerError:
			return domain.ErrGatewayUnavailable
		case status == http.StatusNotFound:
			return backoff.Permanent(domain.ErrNotFound)
		case status >= http.StatusBadRequest:
			return backoff.Permanent(domain.ErrGatewayRejected)
		}

		var resp transactionStatusResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return backoff.Permanent(domain.ErrInvalidPayload)
		}
		if resp.StatusCode == "404" {
			return backoff.Permanent(domain.ErrNotFound)
		}

		parsed, err := statusEventFromResponse(resp, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		event = parsed
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return nil, err
	}
	return event, nil
}

func (c *SnapClient) do(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}

func (c *SnapClient) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = retryInitialInterval
	return backoff.WithContext(backoff.WithMaxRetries(exp, retryMaxAttempts-1), ctx)
}

func statusEventFromResponse(resp transactionStatusResponse, payload []byte) (*domain.StatusEvent, error) {
	orderRef, err := snowflake.ParseString(strings.TrimSpace(resp.OrderID))
	if err != nil {
		return nil, domain.ErrInvalidPayload
	}

	canonical, _ := domain.CanonicalStatus(resp.TransactionStatus)
	occurredAt := time.Now().UTC()
	if ts, err := time.Parse("2006-01-02 15:04:05", strings.TrimSpace(resp.TransactionTime)); err == nil {
		occurredAt = ts.UTC()
	}

	return &domain.StatusEvent{
		OrderRef:          orderRef,
		TransactionID:     strings.TrimSpace(resp.TransactionID),
		TransactionStatus: strings.ToLower(strings.TrimSpace(resp.TransactionStatus)),
		StatusCode:        strings.TrimSpace(resp.StatusCode),
		GrossAmount:       strings.TrimSpace(resp.GrossAmount),
		Status:            canonical,
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

func customerDetails(buyerID string) map[string]string {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil
	}
	return map[string]string{"first_name": "buyer-" + buyerID}
}

// FormatGrossAmount renders an integer minor-unit amount the way the gateway
// echoes it back in notifications ("150000.00").
func FormatGrossAmount(amount int64) string {
	return strconv.FormatInt(amount, 10) + ".00"
}
