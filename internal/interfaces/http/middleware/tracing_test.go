package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/groupbuy/backend/internal/infrastructure/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_EnrichesServerSpan(t *testing.T) {
	recorder := withSpanRecorder(t)
	jwtService := newTestJWTService()
	token, userID := newOperatorToken(t, jwtService, auth.PermissionGroupBuyManage)

	router := gin.New()
	router.Use(RequestID(), TracingWithConfig(DefaultTracingConfig()), SpanEnricher())
	router.GET("/admin/group-orders/:id", JWTAuthMiddleware(jwtService), func(c *gin.Context) {
		c.Status(http.StatusUnprocessableEntity)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/group-orders/abc", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	req.Header.Set(RequestIDHeader, "req-trace")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	v, ok := spanAttr(span, "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-trace", v.AsString())
	v, ok = spanAttr(span, "operator_id")
	require.True(t, ok)
	assert.Equal(t, userID.String(), v.AsString())
	assert.Equal(t, codes.Error, span.Status().Code)
}

func TestTracing_Disabled(t *testing.T) {
	recorder := withSpanRecorder(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false}), SpanEnricher())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, recorder.Ended())
}
