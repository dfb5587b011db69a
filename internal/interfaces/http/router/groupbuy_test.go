package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/infrastructure/auth"
	"github.com/groupbuy/backend/internal/infrastructure/config"
	"github.com/groupbuy/backend/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

type streamsStub int64

func (s streamsStub) ActiveStreams() int64 { return int64(s) }

func newGroupBuyEngine(t *testing.T) (*gin.Engine, *auth.JWTService, *auth.ChatTokenService) {
	t.Helper()
	jwtSvc := auth.NewJWTService(config.JWTConfig{
		Secret:                "router-test-secret-router-test-secret",
		AccessTokenExpiration: time.Hour,
		Issuer:                "groupbuy-test",
	})
	chatTokens := auth.NewChatTokenService("router-chat-secret-router-chat-secret", time.Hour)

	engine := gin.New()
	r := NewRouter(engine)
	for _, reg := range GroupBuyRoutes(GroupBuyHandlers{
		Public: handler.NewGroupOrderHandler(nil, chatTokens),
		Admin:  handler.NewAdminGroupOrderHandler(nil, nil),
		Chat:   handler.NewChatHandler(nil),
		Cron:   handler.NewCronHandler(nil, "cron-secret"),
	}, GroupBuyAuth{JWT: jwtSvc, ChatTokens: chatTokens, Logger: zap.NewNop()}) {
		r.Register(reg)
	}
	r.Setup()
	RegisterHealth(engine, handler.NewHealthHandler(pingStub{}, streamsStub(2)))
	return engine, jwtSvc, chatTokens
}

func TestGroupBuyRoutes_Guards(t *testing.T) {
	engine, jwtSvc, chatTokens := newGroupBuyEngine(t)

	noPerm, _, err := jwtSvc.GenerateAccessToken(auth.GenerateTokenInput{
		UserID:   uuid.New(),
		Username: "viewer",
	})
	require.NoError(t, err)

	gid := uuid.New()
	otherToken, _, err := chatTokens.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
	}{
		{"admin list without token", http.MethodGet, "/api/v1/admin/group-orders", nil, http.StatusUnauthorized},
		{"admin sweep without token", http.MethodPost, "/api/v1/admin/group-orders/sweep", nil, http.StatusUnauthorized},
		{"admin without permission", http.MethodGet, "/api/v1/admin/group-orders/pending",
			map[string]string{"Authorization": "Bearer " + noPerm}, http.StatusForbidden},
		{"chat stream without token", http.MethodGet, "/api/v1/group-orders/" + gid.String() + "/chat/stream", nil, http.StatusUnauthorized},
		{"chat token for another group", http.MethodGet, "/api/v1/group-orders/" + gid.String() + "/chat/messages",
			map[string]string{"X-Chat-Token": otherToken}, http.StatusForbidden},
		{"leave without token", http.MethodDelete, "/api/v1/group-orders/" + gid.String() + "/participants/" + uuid.NewString(), nil, http.StatusUnauthorized},
		{"cron with wrong secret", http.MethodGet, "/api/v1/group-orders/cron/reminders?secret=nope", nil, http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGroupBuyRoutes_Health(t *testing.T) {
	engine, _, _ := newGroupBuyEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, int64(2), body.ChatStreams)
}
