package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/undangly/undangly/internal/config"
	"github.com/undangly/undangly/internal/payment/domain"
	"go.uber.org/zap"
)

func newTestClient(snapURL, apiURL string) *SnapClient {
	cfg := config.Config{}
	cfg.Gateway.ServerKey = "SB-Mid-server-testing"
	cfg.Gateway.SnapBaseURL = snapURL
	cfg.Gateway.APIBaseURL = apiURL
	return NewSnapClient(cfg, zap.NewNop())
}

func TestCreateTransaction(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/snap/v1/transactions", r.URL.Path)

		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "SB-Mid-server-testing", user)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		details := req["transaction_details"].(map[string]any)
		require.Equal(t, "1234567890", details["order_id"])
		require.Equal(t, float64(199000), details["gross_amount"])

		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":        "snap-token-abc",
			"redirect_url": "https://example.test/redirect",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	token, err := client.CreateTransaction(context.Background(), domain.TransactionRequest{
		OrderRef: "1234567890",
		Amount:   199000,
		Currency: "IDR",
		BuyerID:  "42",
	})
	require.NoError(t, err)
	require.Equal(t, "snap-token-abc", token.Token)
	require.Equal(t, "https://example.test/redirect", token.RedirectURL)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateTransactionRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "snap-token-retry"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	token, err := client.CreateTransaction(context.Background(), domain.TransactionRequest{
		OrderRef: "1234567890",
		Amount:   99000,
	})
	require.NoError(t, err)
	require.Equal(t, "snap-token-retry", token.Token)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCreateTransactionRejectedNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_messages": []string{"Access denied due to unauthorized transaction"},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	_, err := client.CreateTransaction(context.Background(), domain.TransactionRequest{
		OrderRef: "1234567890",
		Amount:   99000,
	})
	require.ErrorIs(t, err, domain.ErrGatewayRejected)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateTransactionExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	_, err := client.CreateTransaction(context.Background(), domain.TransactionRequest{
		OrderRef: "1234567890",
		Amount:   99000,
	})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/1234567890/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status_code":        "200",
			"transaction_id":     "txn-1",
			"order_id":           "1234567890",
			"gross_amount":       "199000.00",
			"transaction_status": "settlement",
			"transaction_time":   "2026-03-14 16:01:02",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	event, err := client.QueryStatus(context.Background(), "1234567890")
	require.NoError(t, err)
	require.Equal(t, "1234567890", event.OrderRef.String())
	require.Equal(t, domain.StatusSettled, event.Status)
	require.Equal(t, "txn-1", event.TransactionID)
	require.Equal(t, "199000.00", event.GrossAmount)
}

func TestQueryStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status_code":    "404",
			"status_message": "Transaction doesn't exist.",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	_, err := client.QueryStatus(context.Background(), "1234567890")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFormatGrossAmount(t *testing.T) {
	require.Equal(t, "199000.00", FormatGrossAmount(199000))
	require.Equal(t, "0.00", FormatGrossAmount(0))
}
