package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type routerFixture struct {
	router   chi.Router
	sessions *shared.SessionManager
	redis    *miniredis.Miniredis
	metrics  *observability.Metrics
}

func newRouterFixture(t *testing.T, pinger Pinger) routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	metrics := observability.NewMetrics()
	cfg := &Config{AppEnv: "test", AppRequestTimeout: time.Second, RateLimitPerMinute: 1000}

	handler := NewRouter(RouterParams{
		Config:         cfg,
		SessionManager: sessions,
		RolesHandler:   roles.NewHandler(nil, nil),
		DB:             pinger,
		Metrics:        metrics,
	})
	router, ok := handler.(chi.Router)
	require.True(t, ok)
	return routerFixture{router: router, sessions: sessions, redis: mr, metrics: metrics}
}

func (f routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, stubPinger{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	down := newRouterFixture(t, stubPinger{err: errors.New("connection refused")})
	rec = down.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProtectedRoutesRequirePrincipal(t *testing.T) {
	f := newRouterFixture(t, nil)
	for _, path := range []string{"/roles", "/roles/1", "/roles/combobox", "/users/1/permissions"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Contains(t, rec.Body.String(), string(shared.KindUnauthenticated), path)
	}
}

func TestSessionPrincipalReachesHandlers(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.router.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, shared.Unauthenticated())
			return
		}
		httpx.JSON(w, http.StatusOK, p)
	})
	f.router.Post("/signin", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		require.NoError(t, f.sessions.Renew(r.Context(), sess))
		sess.SetPrincipal(shared.Principal{UserID: 9, Username: "ops"})
		w.WriteHeader(http.StatusNoContent)
	})

	rec := f.do(httptest.NewRequest(http.MethodPost, "/signin", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "test_session", cookies[0].Name)
	assert.True(t, f.redis.Exists("session:"+cookies[0].Value))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookies[0])
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"ops"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnonymousRequestsDoNotCreateSessions(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, rec.Result().Cookies())
	assert.Empty(t, f.redis.Keys())
}

func TestUnknownRouteIsProblemJSON(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMetricsRecordRoutePattern(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.do(httptest.NewRequest(http.MethodGet, "/roles/42", nil))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `backoffice_http_requests_total{code="401",route="/roles/*"} 1`), body)
}
