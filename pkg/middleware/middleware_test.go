package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, claims *Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func adminRouter(cfg config.AuthConfig) *gin.Engine {
	r := gin.New()
	r.GET("/admin", AdminAuth(NewTokenVerifier(cfg), observability.NewNoopLogger()), func(c *gin.Context) {
		c.String(http.StatusOK, Subject(c))
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	cfg := config.AuthConfig{
		JWTSecret:   testSecret,
		Issuer:      "https://auth.example.com",
		AdminRole:   "admin",
		AdminEmails: []string{"Owner@Example.com"},
	}
	valid := func(c *Claims) *Claims {
		c.Issuer = cfg.Issuer
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
		return c
	}

	tests := []struct {
		name       string
		header     func(t *testing.T) string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing header",
			header:     func(t *testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "admin role claim",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, valid(&Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}), testSecret)
			},
			wantStatus: http.StatusOK,
			wantBody:   "u1",
		},
		{
			name: "admin role in app metadata",
			header: func(t *testing.T) string {
				return "bearer " + signToken(t, valid(&Claims{Email: "a@example.com", AppMetadata: map[string]interface{}{"roles": []interface{}{"editor", "admin"}}}), testSecret)
			},
			wantStatus: http.StatusOK,
			wantBody:   "a@example.com",
		},
		{
			name: "allow-listed email",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, valid(&Claims{Email: "owner@example.com", Role: "authenticated"}), testSecret)
			},
			wantStatus: http.StatusOK,
			wantBody:   "owner@example.com",
		},
		{
			name: "authenticated but not admin",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, valid(&Claims{Email: "guest@example.com", Role: "authenticated"}), testSecret)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "wrong secret",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, valid(&Claims{Role: "admin"}), "other")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong issuer",
			header: func(t *testing.T) string {
				c := valid(&Claims{Role: "admin"})
				c.Issuer = "https://evil.example.com"
				return "Bearer " + signToken(t, c, testSecret)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "subject preferred over email",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, valid(&Claims{Email: "owner@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "u2"}}), testSecret)
			},
			wantStatus: http.StatusOK,
			wantBody:   "u2",
		},
		{
			name: "no expiry",
			header: func(t *testing.T) string {
				c := valid(&Claims{Role: "admin"})
				c.ExpiresAt = nil
				return "Bearer " + signToken(t, c, testSecret)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired",
			header: func(t *testing.T) string {
				c := valid(&Claims{Role: "admin"})
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				return "Bearer " + signToken(t, c, testSecret)
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	router := adminRouter(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if h := tt.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestTokenVerifier_NoSecret(t *testing.T) {
	v := NewTokenVerifier(config.AuthConfig{})
	_, err := v.Verify("anything")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestTokenVerifier_RejectsNoneAlgorithm(t *testing.T) {
	v := NewTokenVerifier(config.AuthConfig{JWTSecret: testSecret})
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: "admin"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRateLimiter(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, Limit: 1, Burst: 2, Expiration: time.Minute}, nil, nil)
	defer rl.Stop()

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)

	w := do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, do("10.0.0.2").Code)
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: false, Limit: 1, Burst: 1}, nil, nil)
	defer rl.Stop()

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Zero(t, rl.Len())
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, Expiration: time.Minute}, nil, nil)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(30 * time.Second)
	rl.getLimiter("b")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, rl.cleanup())
	assert.Equal(t, 1, rl.Len())

	rl.Stop()
}

func TestRecovery(t *testing.T) {
	for _, production := range []bool{false, true} {
		r := gin.New()
		r.Use(Recovery(observability.NewNoopLogger(), production))
		r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		if production {
			assert.NotContains(t, w.Body.String(), "kaboom")
		} else {
			assert.Contains(t, w.Body.String(), "kaboom")
		}
	}
}

func TestRequestLoggerAndTracing(t *testing.T) {
	r := gin.New()
	r.Use(Tracing(), RequestLogger(observability.NewNoopLogger(), observability.NewNoopMetricsClient()))
	r.GET("/templates/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/templates/abc", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://other.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
