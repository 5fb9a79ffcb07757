package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/identity"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequestIDAssignsAndPropagates(t *testing.T) {
	t.Parallel()
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-42", seen)
}

func TestRecovery(t *testing.T) {
	t.Parallel()
	h := Recovery(zaptest.NewLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "internal_error", body["error"])
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	called := false
	h := CORS("https://app.example.com")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/conversations", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.False(t, called)
}

func TestLoggingAndMetricsPassThrough(t *testing.T) {
	t.Parallel()
	r := chi.NewRouter()
	r.Use(Logging(zap.NewNop()), Metrics)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

type stubVerifier map[string]identity.Identity

func (s stubVerifier) Verify(token string) (identity.Identity, error) {
	id, ok := s[token]
	if !ok {
		return identity.Identity{}, domain.ErrUnauthorized
	}
	return id, nil
}

func TestAuthenticateTokenSources(t *testing.T) {
	t.Parallel()
	v := stubVerifier{"good": {UserID: "alice", ExpiresAt: time.Now().Add(time.Hour)}}

	cases := map[string]func(*http.Request){
		"cookie": func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"}) },
		"bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") },
		"query":  func(r *http.Request) { r.URL.RawQuery = "token=good" },
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var got identity.Identity
			h := Authenticate(v)(RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = identity.FromContext(r.Context())
			})))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			prepare(req)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "alice", got.UserID)
		})
	}
}

func TestRequireIdentityRejects(t *testing.T) {
	t.Parallel()
	v := stubVerifier{"stale": {UserID: "alice", ExpiresAt: time.Now().Add(-time.Minute)}}
	h := Authenticate(v)(RequireIdentity(http.HandlerFunc(ok)))

	for _, header := range []string{"", "Bearer nope", "Bearer stale", "Basic good"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code, header)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, domain.CodeUnauthorized, body["error"])
	}
}
