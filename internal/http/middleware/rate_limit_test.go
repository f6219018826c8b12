package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScripter counts script invocations in-process, standing in for the
// atomic INCR+PEXPIRE on the server.
type fakeScripter struct {
	count    int64
	err      error
	lastArgs []interface{}
}

func (f *fakeScripter) run(args []interface{}) *redis.Cmd {
	f.lastArgs = args
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	f.count++
	return redis.NewCmdResult(f.count, nil)
}

func (f *fakeScripter) Eval(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
	return f.run(args)
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
	return f.run(args)
}

func (f *fakeScripter) EvalRO(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
	return f.run(args)
}

func (f *fakeScripter) EvalShaRO(_ context.Context, _ string, _ []string, args ...interface{}) *redis.Cmd {
	return f.run(args)
}

func (f *fakeScripter) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeScripter) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(t *testing.T, h http.Handler) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/verify-otp", nil)
	req.RemoteAddr = "198.51.100.7:4312"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	f := &fakeScripter{}
	rl := &RateLimiter{rdb: f, limit: 2, window: time.Minute}
	h := limitedHandler(rl)

	assert.Equal(t, http.StatusOK, hit(t, h))
	assert.Equal(t, http.StatusOK, hit(t, h))
	assert.Equal(t, http.StatusTooManyRequests, hit(t, h))
	assert.Equal(t, http.StatusTooManyRequests, hit(t, h))

	// The window TTL travels with every increment.
	require.Len(t, f.lastArgs, 1)
	assert.EqualValues(t, time.Minute.Milliseconds(), f.lastArgs[0])
}

func TestRateLimiterFailsOpen(t *testing.T) {
	f := &fakeScripter{err: errors.New("connection refused")}
	rl := &RateLimiter{rdb: f, limit: 1, window: time.Minute}
	h := limitedHandler(rl)

	assert.Equal(t, http.StatusOK, hit(t, h))
	assert.Equal(t, http.StatusOK, hit(t, h))
}

func TestRateLimiterNilClientPassesThrough(t *testing.T) {
	rl := NewRateLimiter(nil, 1, time.Minute)
	h := limitedHandler(rl)

	assert.Equal(t, http.StatusOK, hit(t, h))
	assert.Equal(t, http.StatusOK, hit(t, h))
}

func TestRateLimiterKeyPerClientAndPath(t *testing.T) {
	rl := &RateLimiter{limit: 1, window: time.Minute}

	a := httptest.NewRequest(http.MethodPost, "/verify-otp", nil)
	a.RemoteAddr = "198.51.100.7:4312"
	b := httptest.NewRequest(http.MethodPost, "/verify-otp", nil)
	b.RemoteAddr = "198.51.100.8:4312"
	assert.NotEqual(t, rl.key(a), rl.key(b))

	// Same client behind a proxy: the forwarded address wins.
	c := httptest.NewRequest(http.MethodPost, "/verify-otp", nil)
	c.RemoteAddr = "10.0.0.1:80"
	c.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, rl.key(a), rl.key(c))
}
