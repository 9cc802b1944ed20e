package router_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cafe-pos/register/internal/auth"
	"github.com/cafe-pos/register/internal/config"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/cafe-pos/register/internal/metrics"
	"github.com/cafe-pos/register/internal/router"
	"github.com/cafe-pos/register/internal/service"
	"github.com/cafe-pos/register/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "router-test-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := &config.Config{
		JWTSecret:   secret,
		RegisterID:  "reg-router",
		CORSOrigins: []string{"http://localhost:5173"},
	}
	reg := service.NewRegister(service.Config{RegisterID: cfg.RegisterID}, service.Deps{Logger: logger})
	m := metrics.New(prometheus.NewRegistry())
	return router.New(cfg, reg, nil, ws.NewHub(logger), m, logger)
}

func get(t *testing.T, h http.Handler, path, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if role != "" {
		token, err := auth.GenerateToken(secret, 1, "Ana", role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	rr := get(t, newTestRouter(t), "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRegisterRequiresToken(t *testing.T) {
	rr := get(t, newTestRouter(t), "/register/", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRegisterRoles(t *testing.T) {
	tests := []struct {
		role string
		want int
	}{
		{enum.UserRoleCashier, http.StatusOK},
		{enum.UserRoleManager, http.StatusOK},
		{enum.UserRoleOwner, http.StatusOK},
		{enum.UserRoleKitchen, http.StatusForbidden},
	}
	h := newTestRouter(t)
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			rr := get(t, h, "/register/", tt.role)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestIdleRegisterSnapshot(t *testing.T) {
	rr := get(t, newTestRouter(t), "/register/", enum.UserRoleCashier)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"state":"idle"`)
	assert.Contains(t, rr.Body.String(), `"grand_total":"0.00"`)
}

func TestMetricsCountsRoutes(t *testing.T) {
	h := newTestRouter(t)
	get(t, h, "/register/catalog", enum.UserRoleCashier)

	rr := get(t, h, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "register_http_requests_total"), "metrics output should include the request counter")
	assert.Contains(t, body, `route="/register/catalog"`)
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	rr := get(t, newTestRouter(t), "/ws/events", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
