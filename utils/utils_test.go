package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Circuit Breaker Tests

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("stripe")

	assert.Equal(t, "stripe", cb.Name())
	assert.Equal(t, uint32(5), cb.minRequests)
	assert.Equal(t, 0.6, cb.failureRatio)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (any, error) {
		return "session", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "session", result)
	assert.Equal(t, uint32(1), cb.counts.TotalSuccesses)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("test",
		WithThresholds(3, 0.5),
		WithStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)
	ctx := context.Background()
	boom := errors.New("502 bad gateway")

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, func() (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, []State{StateOpen}, transitions)

	_, err := cb.Execute(ctx, func() (any, error) {
		t.Fatal("request must not run while open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	tests := []struct {
		name  string
		trial error
		want  State
	}{
		{"trial succeeds", nil, StateClosed},
		{"trial fails", errors.New("timeout"), StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker("test", WithThresholds(1, 1), WithTimeout(50*time.Millisecond))
			ctx := context.Background()

			_, _ = cb.Execute(ctx, func() (any, error) { return nil, errors.New("down") })
			require.Equal(t, StateOpen, cb.State())

			time.Sleep(80 * time.Millisecond)
			assert.Equal(t, StateHalfOpen, cb.State())

			_, _ = cb.Execute(ctx, func() (any, error) { return nil, tt.trial })
			assert.Equal(t, tt.want, cb.State())
		})
	}
}

func TestCircuitBreaker_StaleGenerationIgnored(t *testing.T) {
	cb := NewCircuitBreaker("test", WithThresholds(1, 0.5), WithTimeout(time.Hour))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cb.Execute(ctx, func() (any, error) {
			close(started)
			<-release
			return "late", nil
		})
	}()
	<-started

	_, _ = cb.Execute(ctx, func() (any, error) { return nil, errors.New("down") })
	require.Equal(t, StateOpen, cb.State())

	close(release)
	<-done

	// The slow success belonged to the closed generation and must not
	// close the breaker again.
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_CancelledContextNotCounted(t *testing.T) {
	cb := NewCircuitBreaker("test", WithThresholds(1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (any, error) { return nil, ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("concurrent-test")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cb.Execute(ctx, func() (any, error) { return "ok", nil })
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(100), cb.counts.TotalSuccesses)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb := NewCircuitBreaker("panic-test")
	ctx := context.Background()

	assert.Panics(t, func() {
		_, _ = cb.Execute(ctx, func() (any, error) { panic("test panic") })
	})

	result, err := cb.Execute(ctx, func() (any, error) { return "recovery", nil })
	assert.NoError(t, err)
	assert.Equal(t, "recovery", result)
}

func TestCircuitBreaker_ReadyToTrip(t *testing.T) {
	tests := []struct {
		name         string
		requests     uint32
		failures     uint32
		minRequests  uint32
		failureRatio float64
		want         bool
	}{
		{"not enough requests", 5, 5, 10, 0.5, false},
		{"high failure ratio", 10, 8, 10, 0.6, true},
		{"low failure ratio", 10, 3, 10, 0.6, false},
		{"exact threshold", 10, 6, 10, 0.6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker("trip-test", WithThresholds(tt.minRequests, tt.failureRatio))
			cb.counts.Requests = tt.requests
			cb.counts.TotalFailures = tt.failures

			assert.Equal(t, tt.want, cb.readyToTrip())
		})
	}
}

// Redis Tests

func TestRedisHealthCheck(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, RedisHealthCheck(context.Background(), db))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	err := RedisHealthCheck(context.Background(), db)
	assert.ErrorContains(t, err, "redis health check failed")
	assert.ErrorContains(t, err, "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectSetNX("reconcile:lock:cs_1", `^[0-9A-F]{32}$`, 10*time.Second).SetVal(true)
	lock, err := AcquireLock(ctx, db, "reconcile:lock:cs_1", 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, lock)

	mock.Regexp().ExpectSetNX("reconcile:lock:cs_1", `^[0-9A-F]{32}$`, 10*time.Second).SetVal(false)
	_, err = AcquireLock(ctx, db, "reconcile:lock:cs_1", 10*time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lock := &Lock{client: db, key: "reconcile:lock:cs_1", token: "ABC123"}

	mock.ExpectEval(releaseScript, []string{"reconcile:lock:cs_1"}, "ABC123").SetVal(int64(1))
	assert.NoError(t, lock.Release(context.Background()))

	mock.ExpectEval(releaseScript, []string{"reconcile:lock:cs_1"}, "ABC123").SetErr(errors.New("READONLY"))
	assert.Error(t, lock.Release(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateCode(t *testing.T) {
	a, err := GenerateCode(8)
	require.NoError(t, err)
	b, err := GenerateCode(8)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[0-9A-F]+$`, a)
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	c.Advance(20 * time.Minute)
	assert.Equal(t, start.Add(20*time.Minute), c.Now())
}

// Benchmark Tests

func BenchmarkCircuitBreaker_Execute(b *testing.B) {
	cb := NewCircuitBreaker("benchmark")
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = cb.Execute(ctx, func() (any, error) { return "ok", nil })
		}
	})
}
