package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, 2) // 2 req/sec, burst of 2

	assert.True(t, rl.Allow("test-key"))
	assert.True(t, rl.Allow("test-key"))
	assert.False(t, rl.Allow("test-key"))

	assert.True(t, rl.Allow("other-key"), "keys are limited independently")
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(1, 2)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
	limited := rl.Middleware()(handler)

	call := func(ip string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		return rec, limited(e.NewContext(req, rec))
	}

	for i := 0; i < 2; i++ {
		rec, err := call("10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get(headerRateLimit))
	}

	rec, err := call("10.0.0.1")
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusTooManyRequests, he.Code)
	assert.Equal(t, "0", rec.Header().Get(headerRateRemaining))
	assert.Equal(t, "1", rec.Header().Get(headerRetryAfter))

	rec, err = call("10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
