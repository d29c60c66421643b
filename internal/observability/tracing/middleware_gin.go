package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/undangly/undangly/internal/observability/obsctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware instruments inbound HTTP requests.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("undangly/http")
	propagator := otel.GetTextMapPropagator()
	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))

		if requestID := obsctx.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		// Deferred so a handler panic recovered further up the chain still
		// ends the span.
		defer func() {
			route := c.FullPath()
			if route == "" {
				route = "unknown"
			}
			span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)
			span.SetAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", c.Writer.Status()),
				attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			)

			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				if lastErr := c.Errors.Last(); lastErr != nil {
					span.RecordError(lastErr.Err)
				}
				span.SetStatus(codes.Error, "request error")
			}
			span.End()
		}()

		c.Next()
	}
}
