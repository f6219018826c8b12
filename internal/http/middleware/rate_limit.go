package middleware

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avms/gatepass/internal/http/response"
	"github.com/avms/gatepass/pkg/logger"
)

// The counter and its TTL are set in one server-side step; a crash
// between separate INCR and EXPIRE calls would leave a counter that
// never resets.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count`)

// RateLimiter is a fixed-window counter in Redis, keyed per client IP and
// path. Guards the manual OTP endpoint: 10^4 codes invite brute force.
type RateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{limit: limit, window: window}
	if rdb != nil {
		rl.rdb = rdb
	}
	return rl
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.rdb == nil {
				next.ServeHTTP(w, r)
				return
			}

			count, err := fixedWindowScript.Run(
				r.Context(), rl.rdb,
				[]string{rl.key(r)}, rl.window.Milliseconds(),
			).Int64()
			if err != nil {
				// Redis being down must not lock the gate.
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(rl.limit) {
				response.RateLimit(w, "Too many attempts. Try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) key(r *http.Request) string {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = strings.TrimSpace(strings.Split(xff, ",")[0])
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	// Hash the key for privacy
	sum := sha256.Sum256([]byte(ip + "|" + r.URL.Path))
	return fmt.Sprintf("ratelimit:%x", sum)
}
