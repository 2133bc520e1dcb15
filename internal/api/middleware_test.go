package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestCORSAllowsConfiguredWildcard(t *testing.T) {
	h := CORS([]string{"*"}, http.HandlerFunc(ok))
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowsOnlyListedOrigin(t *testing.T) {
	h := CORS([]string{"https://allowed.example"}, http.HandlerFunc(ok))

	allowed := httptest.NewRequest("GET", "/", nil)
	allowed.Header.Set("Origin", "https://allowed.example")
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, allowed)
	assert.Equal(t, "https://allowed.example", w1.Header().Get("Access-Control-Allow-Origin"))

	other := httptest.NewRequest("GET", "/", nil)
	other.Header.Set("Origin", "https://evil.example")
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, other)
	assert.Empty(t, w2.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSShortCircuitsPreflight(t *testing.T) {
	called := false
	h := CORS([]string{"*"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, called, "OPTIONS requests must not reach the wrapped handler")
}

func TestAccessLogCapturesActualStatus(t *testing.T) {
	h := AccessLog(zerolog.Nop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	r := httptest.NewRequest("GET", "/x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestIsPrefixed(t *testing.T) {
	assert.True(t, isPrefixed("/balance", "/balance"))
	assert.True(t, isPrefixed("/balance/system", "/balance"))
	assert.False(t, isPrefixed("/balances", "/balance"))
}
