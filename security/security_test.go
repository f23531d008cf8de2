package security

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newEvent(req *http.Request) *core.RequestEvent {
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func testLimiter(perMinute int) (*RateLimiter, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, perMinute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rl.KeyFunc = func(*core.RequestEvent) string { return "10.0.0.1" }
	return rl, mock
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, mock := testLimiter(2)
	ctx := context.Background()
	key := "ratelimit:checkin:10.0.0.1"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpireNX(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectExpireNX(key, time.Minute).SetVal(false)
	mock.ExpectIncr(key).SetVal(3)
	mock.ExpectExpireNX(key, time.Minute).SetVal(false)

	for _, want := range []bool{true, true, false} {
		ok, err := rl.Allow(ctx, "checkin", "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_LostExpireIsRepaired(t *testing.T) {
	rl, mock := testLimiter(5)
	ctx := context.Background()
	key := "ratelimit:reserve:10.0.0.1"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpireNX(key, time.Minute).SetErr(errors.New("i/o timeout"))
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectExpireNX(key, time.Minute).SetVal(true)

	ok, err := rl.Allow(ctx, "reserve", "10.0.0.1")
	assert.Error(t, err)
	assert.True(t, ok)

	// The next hit sets the TTL the first one missed.
	ok, err = rl.Allow(ctx, "reserve", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_RedisDownFailsOpen(t *testing.T) {
	rl, mock := testLimiter(1)
	mock.ExpectIncr("ratelimit:reserve:10.0.0.1").SetErr(errors.New("connection refused"))

	ok, err := rl.Allow(context.Background(), "reserve", "10.0.0.1")
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_Middleware(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		count     int64
		wantCode  int
	}{
		{"under limit", "Mozilla/5.0", 1, 0},
		{"over limit", "Mozilla/5.0", 31, http.StatusTooManyRequests},
		{"crawler", "Googlebot/2.1", 0, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, mock := testLimiter(30)
			if tt.count > 0 {
				mock.ExpectIncr("ratelimit:reserve:10.0.0.1").SetVal(tt.count)
				mock.ExpectExpireNX("ratelimit:reserve:10.0.0.1", time.Minute).SetVal(tt.count == 1)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", nil)
			req.Header.Set("User-Agent", tt.userAgent)

			err := rl.Middleware("reserve")(newEvent(req))
			if tt.wantCode == 0 {
				assert.NoError(t, err)
				return
			}
			var apiErr *router.ApiError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Status)
		})
	}
}

func TestScannerAuth(t *testing.T) {
	hash, err := HashScannerKey("door-7", bcrypt.MinCost)
	require.NoError(t, err)
	auth := NewScannerAuth(hash)

	assert.NoError(t, auth.Verify("door-7"))
	assert.Error(t, auth.Verify("door-8"))
	assert.Error(t, auth.Verify(""))
	assert.ErrorIs(t, NewScannerAuth("").Verify("door-7"), ErrScannerKeyNotConfigured)

	ok := httptest.NewRequest(http.MethodPost, "/api/v1/checkin", nil)
	ok.Header.Set(ScannerKeyHeader, "door-7")
	assert.NoError(t, auth.Middleware()(newEvent(ok)))

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/checkin", nil)
	bad.Header.Set(ScannerKeyHeader, "guess")
	var apiErr *router.ApiError
	require.ErrorAs(t, auth.Middleware()(newEvent(bad)), &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
