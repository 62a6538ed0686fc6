package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderportal/api/controllers"
	"github.com/angelmondragon/orderportal/internal/balancerequests"
	"github.com/angelmondragon/orderportal/internal/orders"
	"github.com/angelmondragon/orderportal/internal/stats"
	pkgAuth "github.com/angelmondragon/orderportal/pkg/auth"
	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubOrders struct {
	orders.Service
	listed []types.Actor
}

func (s *stubOrders) List(_ context.Context, actor types.Actor, _ orders.ListParams) (*orders.ListResult, error) {
	s.listed = append(s.listed, actor)
	return &orders.ListResult{Orders: []models.Order{}}, nil
}

type stubBalanceRequests struct {
	balancerequests.Service
}

func (stubBalanceRequests) ListPending(context.Context, types.Actor, balancerequests.ListParams) (*balancerequests.ListResult, error) {
	return &balancerequests.ListResult{}, nil
}

type stubStats struct {
	stats.Service
}

func (stubStats) Overview(context.Context, types.Actor, time.Time) (*stats.Overview, error) {
	return &stats.Overview{}, nil
}

func (stubStats) Sales(_ context.Context, _ types.Actor, rng stats.Range) (*stats.SalesReport, error) {
	return &stats.SalesReport{Range: rng}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "orderportal", ExpirationMinutes: 15},
	}
}

func newTestRouter(t *testing.T, ordersSvc orders.Service) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Config:          testConfig(),
		Logger:          logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		Readiness:       map[string]controllers.Pinger{"db": stubPinger{}},
		Tokens:          testTokens(t),
		Metrics:         http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Orders:          ordersSvc,
		BalanceRequests: stubBalanceRequests{},
		Stats:           stubStats{},
	})
}

func testTokens(t *testing.T) *pkgAuth.Tokens {
	t.Helper()
	tokens, err := pkgAuth.NewTokens(testConfig().JWT)
	require.NoError(t, err)
	return tokens
}

func bearer(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := testTokens(t).Issue(time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(t, &stubOrders{})
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	router := newTestRouter(t, &stubOrders{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrdersRouteReachesService(t *testing.T) {
	svc := &stubOrders{}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleUser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.listed, 1)
	assert.False(t, svc.listed[0].IsAdmin)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router := newTestRouter(t, &stubOrders{})
	cases := []struct {
		role enums.UserRole
		want int
	}{
		{enums.UserRoleUser, http.StatusForbidden},
		{enums.UserRoleAdmin, http.StatusOK},
	}
	for _, path := range []string{"/api/v1/admin/orders", "/api/v1/admin/balance/requests", "/api/v1/admin/stats/overview", "/api/v1/admin/stats/sales?preset=7d"} {
		for _, tc := range cases {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("Authorization", bearer(t, tc.role))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code, "%s as %s", path, tc.role)
		}
	}
}
