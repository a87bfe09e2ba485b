package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		masterKey      string
		path           string
		authHeader     string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "no master key configured - allows request",
			masterKey:      "",
			authHeader:     "",
			expectedStatus: http.StatusOK,
			expectedBody:   "ok",
		},
		{
			name:           "valid master key - allows request",
			masterKey:      "secret-key-123",
			authHeader:     "Bearer secret-key-123",
			expectedStatus: http.StatusOK,
			expectedBody:   "ok",
		},
		{
			name:           "missing authorization header - denies request",
			masterKey:      "secret-key-123",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"missing authorization header","type":"authentication_error"}}`,
		},
		{
			name:           "invalid authorization format - denies request",
			masterKey:      "secret-key-123",
			authHeader:     "secret-key-123",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"invalid authorization header format, expected 'Bearer <token>'","type":"authentication_error"}}`,
		},
		{
			name:           "invalid master key - denies request",
			masterKey:      "secret-key-123",
			authHeader:     "Bearer wrong-key",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"invalid master key","type":"authentication_error"}}`,
		},
		{
			name:           "bearer prefix case sensitive - denies request",
			masterKey:      "secret-key-123",
			authHeader:     "bearer secret-key-123",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"invalid authorization header format, expected 'Bearer <token>'","type":"authentication_error"}}`,
		},
		{
			name:           "empty bearer token - denies request",
			masterKey:      "secret-key-123",
			authHeader:     "Bearer ",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":{"message":"invalid master key","type":"authentication_error"}}`,
		},
		{
			name:           "skipped path - allows request without header",
			masterKey:      "secret-key-123",
			path:           "/health",
			authHeader:     "",
			expectedStatus: http.StatusOK,
			expectedBody:   "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()

			testHandler := func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			}
			handler := AuthMiddleware(tt.masterKey, []string{"/health"})(testHandler)

			path := tt.path
			if path == "" {
				path = "/v1/chat"
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler(c)

			// The middleware writes error responses itself.
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.expectedBody, rec.Body.String())
			} else {
				assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_Integration(t *testing.T) {
	t.Run("with master key - protects all routes", func(t *testing.T) {
		e := echo.New()
		e.Use(AuthMiddleware("my-secret-key", nil))

		e.GET("/test", func(c echo.Context) error {
			return c.String(http.StatusOK, "success")
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer my-secret-key")
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", rec.Body.String())
	})

	t.Run("without master key - allows all routes", func(t *testing.T) {
		e := echo.New()
		e.Use(AuthMiddleware("", nil))

		e.GET("/test", func(c echo.Context) error {
			return c.String(http.StatusOK, "success")
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", rec.Body.String())
	})
}

func TestAuthMiddleware_RejectedChatNeverReachesProvider(t *testing.T) {
	openai := &mockProvider{name: "openai"}
	srv := newTestServer(t, &Config{MasterKey: "secret-key"}, openai)

	rec := srv.do(http.MethodPost, "/v1/chat", helloBody, "Authorization", "Bearer wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"invalid master key","type":"authentication_error"}}`, rec.Body.String())
	assert.Empty(t, openai.models)
	assert.Empty(t, srv.logger.entries)

	rec = srv.do(http.MethodPost, "/v1/chat", helloBody, "Authorization", "Bearer secret-key")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"gpt-4o"}, openai.models)
	assert.Equal(t, "openai", srv.logger.only(t).Provider)
}

func TestAuthMiddleware_SkipPathsMatchExactly(t *testing.T) {
	e := echo.New()
	e.Use(AuthMiddleware("secret-key", []string{"/health"}))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/health", ok)
	e.GET("/healthz", ok)
	e.GET("/health/deep", ok)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/health", http.StatusOK},
		{"/healthz", http.StatusUnauthorized},
		{"/health/deep", http.StatusUnauthorized},
		{"/health?verbose=1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAuthMiddleware_TokenIsNotTrimmed(t *testing.T) {
	e := echo.New()
	e.Use(AuthMiddleware("secret-key", nil))
	e.GET("/v1/providers", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, header := range []string{"Bearer  secret-key", "Bearer secret-key ", "Bearer secret-key-extra"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
