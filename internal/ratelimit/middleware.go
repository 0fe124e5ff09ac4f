package ratelimit

import (
	"fmt"
	"hash/fnv"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Middleware returns a chi-compatible middleware enforcing the given
// tier. Rejected requests get HTTP 429 with the standard rate-limit
// headers.
func (l *Limiter) Middleware(tier Tier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := Identifier(tier.Name, r)
			result := l.Check(r.Context(), identifier, tier.Limit, tier.Window)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(result.ResetSeconds))

			if !result.Allowed {
				l.metrics.IncrRateLimitRejection(tier.Name)
				l.logger.Warn("ratelimit: request rejected",
					zap.String("tier", tier.Name),
					zap.String("identifier", identifier),
					zap.Int("retry_after", result.RetryAfter),
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"rate limit exceeded","retryAfter":%d}`, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Identifier derives the counter key for a request: tier, client
// network address and a hashed client signature. Combining the address
// with the signature raises the bar above trivial IP rotation.
func Identifier(tier string, r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	h := fnv.New32a()
	h.Write([]byte(r.Header.Get("User-Agent")))
	h.Write([]byte(r.Header.Get("Accept-Language")))

	return fmt.Sprintf("ratelimit:%s:%s:%08x", tier, host, h.Sum32())
}
