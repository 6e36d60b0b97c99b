package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type fakeAuth struct {
	services.AuthService
	keys map[string]uint
}

func (f fakeAuth) SetContextFromToken(ctx context.Context, key string) (context.Context, error) {
	id, ok := f.keys[key]
	if !ok {
		return ctx, apierr.Auth("auth.token", "Invalid token.")
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: id, TokenKey: key}), nil
}


func authEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	require.NoError(t, err)
	am := NewAuthMiddleware(log, fakeAuth{keys: map[string]uint{"k1": 7}})
	r := gin.New()
	r.Use(AttachTraceContext(), RequestLogger(log), am.RequireAuth())
	r.GET("/me/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": ctxutil.UserID(c.Request.Context())})
	})
	return r
}

func TestRequireAuthSchemes(t *testing.T) {
	r := authEngine(t)
	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"token scheme", "Token k1", "", http.StatusOK},
		{"bearer scheme", "Bearer k1", "", http.StatusOK},
		{"query param", "", "?token=k1", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"unknown key", "Token nope", "", http.StatusUnauthorized},
		{"basic scheme", "Basic k1", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me/"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.JSONEq(t, `{"id":7}`, rec.Body.String())
			}
		})
	}
}

func TestTraceContextEchoesRequestID(t *testing.T) {
	r := authEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/me/", nil)
	req.Header.Set("Authorization", "Token k1")
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestMetricsMiddlewareCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.NewMetrics()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/v1/projects/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/projects/", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	n, err := testutil.GatherAndCount(m.Registry(), "tb_api_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the api route is recorded")
}
