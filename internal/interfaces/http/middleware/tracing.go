package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "groupbuy-backend",
		Enabled:     true,
	}
}

// TracingWithConfig returns otelgin middleware creating one server span per
// request. Pair it with SpanEnricher.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanEnricher tags the server span with request_id, the operator id and
// the participant id of a chat token, and marks 4xx/5xx responses as
// errors. It must run inside TracingWithConfig so the span is still open
// when the handler returns.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		enrichSpan(c, span)
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := c.GetString(RequestIDKey); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if userID := GetJWTUserID(c); userID != "" {
		span.SetAttributes(attribute.String("operator_id", userID))
	}
	if claims := GetChatClaims(c); claims != nil {
		span.SetAttributes(attribute.String("participant_id", claims.ParticipantID))
	}

	status := c.Writer.Status()
	if status >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
