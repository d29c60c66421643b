package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/undangly/undangly/internal/payment/domain"
	"go.uber.org/zap"
)

type startPaymentRequest struct {
	BuyerID   string `json:"buyer_id"`
	PackageID string `json:"package_id"`
	ThemeID   string `json:"theme_id"`
	OrderRef  string `json:"order_ref"`
}

func (s *Server) StartPayment(c *gin.Context) {
	var req startPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if strings.TrimSpace(req.OrderRef) == "" &&
		(strings.TrimSpace(req.BuyerID) == "" || strings.TrimSpace(req.PackageID) == "") {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.paymentSvc.StartPayment(c.Request.Context(), paymentdomain.StartPaymentRequest{
		BuyerID:   req.BuyerID,
		PackageID: req.PackageID,
		ThemeID:   req.ThemeID,
		OrderRef:  req.OrderRef,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

type paymentStatusResponse struct {
	paymentdomain.SessionStatus

	PollIntervalMS  int `json:"poll_interval_ms"`
	PollMaxAttempts int `json:"poll_max_attempts"`
}

func (s *Server) GetPaymentStatus(c *gin.Context) {
	status, err := s.paymentSvc.CheckStatus(c.Request.Context(), c.Param("order_ref"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentStatusResponse{
		SessionStatus:   status,
		PollIntervalMS:  s.cfg.Payment.PollIntervalMS,
		PollMaxAttempts: s.cfg.Payment.PollMaxAttempts,
	})
}

// statusPollRateLimit throttles polling per caller and order. Redis being
// down never blocks a poll; the limiter fails open.
func (s *Server) statusPollRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.pollLimiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.pollLimiter.Allow(c.Request.Context(), c.ClientIP(), c.Param("order_ref"))
		if err != nil {
			s.log.Warn("status poll rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			retryAfter := int(res.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many status requests",
			}})
			return
		}
		c.Next()
	}
}

func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhookSvc.IngestNotification(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
